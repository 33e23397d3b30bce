// Package scrape runs store scrapes as tracked jobs.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/scraper"
	"grocery-price/internal/store"

	"github.com/google/uuid"
)

var (
	ErrStoreNotFound = errors.New("store not found")
	ErrStoreInactive = errors.New("store is not active")
	ErrJobRunning    = errors.New("a scrape job is already running for this store")
	ErrNoStrategy    = errors.New("no scraper strategy for store")
)

// snapshotWindow is how far back the pre-scrape price snapshot reaches
const snapshotWindow = 24 * time.Hour

// Repository is the slice of persistence the orchestrator uses
type Repository interface {
	store.StoreRepository
	store.JobRepository
	store.PriceRecordRepository
}

// Resolver maps a listing to its canonical product
type Resolver interface {
	Resolve(ctx context.Context, scraped model.ScrapedProduct, st *model.Store) (*model.Product, error)
}

// Recorder stores one price observation
type Recorder interface {
	Record(ctx context.Context, productID string, st *model.Store, scraped model.ScrapedProduct) (*model.PriceRecord, error)
}

// DropDetector finds price drops against a snapshot of earlier records
type DropDetector interface {
	DetectDrops(ctx context.Context, st *model.Store, previous []*model.PriceRecord) ([]model.PriceDrop, error)
}

// Notifier delivers price drops to subscribers
type Notifier interface {
	Dispatch(ctx context.Context, drops []model.PriceDrop) error
}

// saver is implemented by repositories that persist explicitly
type saver interface {
	Save() error
}

// Deps are the orchestrator's collaborators. Notifier may be nil.
type Deps struct {
	Repo     Repository
	Registry *scraper.Registry
	Matcher  Resolver
	Recorder Recorder
	Analyzer DropDetector
	Notifier Notifier
	Runner   *Runner
	Logger   *slog.Logger
}

// Orchestrator triggers scrapes and drives each job to a terminal state
type Orchestrator struct {
	repo     Repository
	registry *scraper.Registry
	matcher  Resolver
	recorder Recorder
	analyzer DropDetector
	notifier Notifier
	runner   *Runner
	logger   *slog.Logger

	// in-process claims, keyed by store id
	claims sync.Map
	now    func() time.Time
}

// New creates an orchestrator
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := d.Runner
	if runner == nil {
		runner = NewRunner(logger)
	}
	return &Orchestrator{
		repo:     d.Repo,
		registry: d.Registry,
		matcher:  d.Matcher,
		recorder: d.Recorder,
		analyzer: d.Analyzer,
		notifier: d.Notifier,
		runner:   runner,
		logger:   logger.With("component", "orchestrator"),
		now:      time.Now,
	}
}

// TriggerScrape creates a PENDING job for the store and starts it in the
// background. The returned job is a snapshot taken before execution begins.
func (o *Orchestrator) TriggerScrape(ctx context.Context, storeCode string) (*model.ScrapeJob, error) {
	st, err := o.repo.GetStoreByCode(ctx, storeCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, storeCode)
	}
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", storeCode, err)
	}
	if !st.Active {
		return nil, fmt.Errorf("%w: %s", ErrStoreInactive, storeCode)
	}

	if _, held := o.claims.LoadOrStore(st.ID, struct{}{}); held {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, storeCode)
	}
	release := func() { o.claims.Delete(st.ID) }

	running, err := o.repo.HasRunningJob(ctx, st.ID)
	if err != nil {
		release()
		return nil, fmt.Errorf("check running jobs: %w", err)
	}
	if running {
		release()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, storeCode)
	}

	job := &model.ScrapeJob{
		ID:            uuid.NewString(),
		StoreID:       st.ID,
		StoreCode:     st.Code,
		Status:        model.JobPending,
		CreatedAt:     o.now(),
		ErrorMessages: []string{},
	}
	if err := o.repo.SaveJob(ctx, job); err != nil {
		release()
		return nil, fmt.Errorf("save job: %w", err)
	}
	snapshot := job.Clone()

	err = o.runner.Go("scrape "+st.Code, func(ctx context.Context) error {
		defer release()
		return o.run(ctx, st, job)
	})
	if err != nil {
		release()
		o.fail(ctx, job, err)
		return nil, fmt.Errorf("start job: %w", err)
	}

	o.logger.Info("scrape job queued", "job", job.ID, "store", st.Code)
	return snapshot, nil
}

// TriggerScrapeAll triggers every active store. Stores that cannot start are
// logged and skipped; only started jobs are returned.
func (o *Orchestrator) TriggerScrapeAll(ctx context.Context) []*model.ScrapeJob {
	stores, err := o.repo.ListActiveStores(ctx)
	if err != nil {
		o.logger.Error("list active stores failed", "error", err)
		return nil
	}

	jobs := make([]*model.ScrapeJob, 0, len(stores))
	for _, st := range stores {
		job, err := o.TriggerScrape(ctx, st.Code)
		if err != nil {
			o.logger.Warn("skipping store", "store", st.Code, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// execute drives job from RUNNING to a terminal state. Price drops are only
// analysed for completed jobs, and their failures never touch the job.
func (o *Orchestrator) execute(ctx context.Context, st *model.Store, job *model.ScrapeJob) error {
	logger := o.logger.With("job", job.ID, "store", st.Code)

	started := o.now()
	job.Status = model.JobRunning
	job.StartedAt = &started
	if err := o.repo.SaveJob(ctx, job); err != nil {
		o.fail(ctx, job, err)
		return err
	}
	logger.Info("scrape job started")

	previous, err := o.scrape(ctx, st, job, logger)
	if err != nil {
		o.fail(ctx, job, err)
		return err
	}

	completed := o.now()
	job.Status = model.JobCompleted
	job.CompletedAt = &completed
	if err := o.repo.SaveJob(ctx, job); err != nil {
		logger.Error("failed to save completed job", "error", err)
	}
	o.persist()

	logger.Info("scrape job completed",
		"total", job.TotalProducts, "success", job.SuccessCount, "errors", job.ErrorCount,
		"duration", completed.Sub(started))

	o.analyze(ctx, st, previous, logger)
	return nil
}

// run executes job and recovers a panic raised before it reached COMPLETED
func (o *Orchestrator) run(ctx context.Context, st *model.Store, job *model.ScrapeJob) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
			if job.Status.Terminal() {
				o.logger.Error("panic after job finished", "job", job.ID, "error", err)
				return
			}
			o.fail(ctx, job, err)
		}
	}()
	return o.execute(ctx, st, job)
}

// scrape runs the strategy and records every listing. It returns the records
// of the 24 hours before the run.
func (o *Orchestrator) scrape(ctx context.Context, st *model.Store, job *model.ScrapeJob, logger *slog.Logger) ([]*model.PriceRecord, error) {
	strategy, ok := o.registry.Get(st.Code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStrategy, st.Code)
	}

	previous, err := o.repo.ListPriceRecordsSince(ctx, st.ID, o.now().Add(-snapshotWindow))
	if err != nil {
		return nil, fmt.Errorf("snapshot previous records: %w", err)
	}

	listings, err := strategy.ScrapeAll(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	job.TotalProducts = len(listings)
	logger.Info("listings scraped", "count", len(listings))

	for _, item := range listings {
		if err := o.ingest(ctx, st, item); err != nil {
			job.ErrorCount++
			job.ErrorMessages = append(job.ErrorMessages, fmt.Sprintf("%s: %v", item.Name, err))
			logger.Warn("listing failed", "name", item.Name, "store_product_id", item.StoreProductID, "error", err)
			continue
		}
		job.SuccessCount++
	}
	return previous, nil
}

func (o *Orchestrator) ingest(ctx context.Context, st *model.Store, item model.ScrapedProduct) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()

	product, err := o.matcher.Resolve(ctx, item, st)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if _, err := o.recorder.Record(ctx, product.ID, st, item); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

// analyze runs after the job is terminal; every failure here is only logged
func (o *Orchestrator) analyze(ctx context.Context, st *model.Store, previous []*model.PriceRecord, logger *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("price drop analysis panicked", "panic", v)
		}
	}()

	drops, err := o.analyzer.DetectDrops(ctx, st, previous)
	if err != nil {
		logger.Error("price drop analysis failed", "error", err)
		return
	}
	logger.Info("price drops detected", "count", len(drops))
	if len(drops) == 0 || o.notifier == nil {
		return
	}
	if err := o.notifier.Dispatch(ctx, drops); err != nil {
		logger.Error("price drop dispatch failed", "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *model.ScrapeJob, cause error) {
	at := o.now()
	job.Status = model.JobFailed
	job.CompletedAt = &at
	job.ErrorMessages = append(job.ErrorMessages, cause.Error())
	if err := o.repo.SaveJob(ctx, job); err != nil {
		o.logger.Error("failed to save failed job", "job", job.ID, "error", err)
	}
	o.persist()
	o.logger.Error("scrape job failed", "job", job.ID, "store", job.StoreCode, "error", cause)
}

func (o *Orchestrator) persist() {
	if s, ok := o.repo.(saver); ok {
		if err := s.Save(); err != nil {
			o.logger.Error("failed to persist data", "error", err)
		}
	}
}

// GetJob returns a job by id
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	return o.repo.GetJob(ctx, id)
}

// LatestJob returns the most recent job of a store
func (o *Orchestrator) LatestJob(ctx context.Context, storeCode string) (*model.ScrapeJob, error) {
	st, err := o.repo.GetStoreByCode(ctx, storeCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, storeCode)
	}
	if err != nil {
		return nil, err
	}
	return o.repo.LatestJob(ctx, st.ID)
}

// RecoverStaleJobs fails jobs left PENDING or RUNNING by a previous process
func (o *Orchestrator) RecoverStaleJobs(ctx context.Context) (int, error) {
	n, err := o.repo.RecoverStaleJobs(ctx, "interrupted: server restarted", o.now())
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("recovered stale jobs", "count", n)
		o.persist()
	}
	return n, nil
}

// Wait blocks until every job started so far has finished
func (o *Orchestrator) Wait() {
	o.runner.Wait()
}

// Stop stops accepting jobs and waits for running ones
func (o *Orchestrator) Stop() {
	o.runner.Stop()
}

// RunnerStats exposes the task runner statistics
func (o *Orchestrator) RunnerStats() RunnerStats {
	return o.runner.Stats()
}
