package scrape

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"grocery-price/internal/matcher"
	"grocery-price/internal/model"
	"grocery-price/internal/pricing"
	"grocery-price/internal/scraper"
	"grocery-price/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	code     string
	listings []model.ScrapedProduct
	err      error
	block    chan struct{}
	panics   bool
}

func (f *fakeStrategy) StoreCode() string { return f.code }

func (f *fakeStrategy) ScrapeAll(ctx context.Context, _ *model.Store) ([]model.ScrapedProduct, error) {
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("parser exploded")
	}
	return f.listings, f.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	drops []model.PriceDrop
}

func (n *recordingNotifier) Dispatch(_ context.Context, drops []model.PriceDrop) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drops = append(n.drops, drops...)
	return nil
}

func (n *recordingNotifier) received() []model.PriceDrop {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.PriceDrop(nil), n.drops...)
}

type harness struct {
	repo     *store.Store
	orch     *Orchestrator
	notifier *recordingNotifier
}

func newHarness(t *testing.T, strategies ...scraper.Strategy) *harness {
	t.Helper()
	return newHarnessWith(t, nil, strategies...)
}

// newHarnessWith lets a test swap collaborators before the orchestrator is built
func newHarnessWith(t *testing.T, customize func(*Deps), strategies ...scraper.Strategy) *harness {
	t.Helper()
	repo := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, repo.SaveStore(ctx, &model.Store{ID: "s-tnt", Code: "TNT", Name: "T&T", Active: true}))
	require.NoError(t, repo.SaveStore(ctx, &model.Store{ID: "s-wm", Code: "WALMART", Name: "Walmart", Active: true}))
	require.NoError(t, repo.SaveStore(ctx, &model.Store{ID: "s-old", Code: "OLD", Name: "Closed", Active: false}))

	n := &recordingNotifier{}
	deps := Deps{
		Repo:     repo,
		Registry: scraper.NewRegistry(strategies...),
		Matcher:  matcher.New(repo, nil),
		Recorder: pricing.NewRecorder(repo),
		Analyzer: pricing.NewAnalyzer(repo, nil),
		Notifier: n,
	}
	if customize != nil {
		customize(&deps)
	}
	o := New(deps)
	t.Cleanup(o.Stop)
	return &harness{repo: repo, orch: o, notifier: n}
}

func listing(id, name, regular string) model.ScrapedProduct {
	p := decimal.NewNullDecimal(decimal.RequireFromString(regular))
	return model.ScrapedProduct{StoreProductID: id, Name: name, RegularPrice: p, EffectivePrice: p, InStock: true}
}

func TestTriggerScrapeRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.TriggerScrape(ctx, "COSTCO")
	assert.True(t, errors.Is(err, ErrStoreNotFound))

	_, err = h.orch.TriggerScrape(ctx, "OLD")
	assert.True(t, errors.Is(err, ErrStoreInactive))

	require.NoError(t, h.repo.SaveJob(ctx, &model.ScrapeJob{ID: "busy", StoreID: "s-tnt", StoreCode: "TNT", Status: model.JobRunning}))
	_, err = h.orch.TriggerScrape(ctx, "TNT")
	assert.True(t, errors.Is(err, ErrJobRunning))
}

func TestTriggerScrapeRejectsDuplicateInFlight(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, &fakeStrategy{code: "TNT", block: block})
	ctx := context.Background()

	job, err := h.orch.TriggerScrape(ctx, "TNT")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)

	_, err = h.orch.TriggerScrape(ctx, "TNT")
	assert.True(t, errors.Is(err, ErrJobRunning))

	close(block)
	h.orch.Wait()

	// The claim is released once the job ends
	_, err = h.orch.TriggerScrape(ctx, "TNT")
	require.NoError(t, err)
	h.orch.Wait()
}

func TestScrapeJobCompletesAndDispatchesDrops(t *testing.T) {
	h := newHarness(t, &fakeStrategy{code: "TNT", listings: []model.ScrapedProduct{
		listing("A1", "Fuji Apples 3lb", "7"),
		listing("A2", "Bok Choy", "2.49"),
		{StoreProductID: "A3"},
	}})
	ctx := context.Background()

	require.NoError(t, h.repo.SaveProduct(ctx, &model.Product{
		ID: "p-fuji", Name: "Fuji Apples 3lb", NormalizedName: "fuji apples 3lb",
		StoreProductIDs: model.StoreProductIDs{"TNT": "A1"},
	}))
	require.NoError(t, h.repo.AppendPriceRecord(ctx, &model.PriceRecord{
		ProductID:    "p-fuji",
		StoreID:      "s-tnt",
		RegularPrice: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		CapturedAt:   time.Now().Add(-3 * time.Hour),
	}))

	job, err := h.orch.TriggerScrape(ctx, "TNT")
	require.NoError(t, err)
	h.orch.Wait()

	done, err := h.orch.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 3, done.TotalProducts)
	assert.Equal(t, 2, done.SuccessCount)
	assert.Equal(t, 1, done.ErrorCount)
	assert.Len(t, done.ErrorMessages, 1)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	drops := h.notifier.received()
	require.Len(t, drops, 1)
	assert.Equal(t, "p-fuji", drops[0].Product.ID)
	assert.Equal(t, 30.0, drops[0].DropPercentage)

	latest, err := h.orch.LatestJob(ctx, "TNT")
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)
}

func TestScrapeJobFailures(t *testing.T) {
	tests := []struct {
		name     string
		strategy scraper.Strategy
		message  string
	}{
		{"missing strategy", nil, "no scraper strategy"},
		{"strategy error", &fakeStrategy{code: "TNT", err: errors.New("site down")}, "site down"},
		{"strategy panic", &fakeStrategy{code: "TNT", panics: true}, "parser exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var strategies []scraper.Strategy
			if tt.strategy != nil {
				strategies = append(strategies, tt.strategy)
			}
			h := newHarness(t, strategies...)
			ctx := context.Background()

			job, err := h.orch.TriggerScrape(ctx, "TNT")
			require.NoError(t, err)
			h.orch.Wait()

			done, err := h.orch.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobFailed, done.Status)
			require.NotEmpty(t, done.ErrorMessages)
			assert.Contains(t, done.ErrorMessages[len(done.ErrorMessages)-1], tt.message)
			assert.Empty(t, h.notifier.received())
		})
	}
}

func TestTriggerScrapeAllSkipsFailures(t *testing.T) {
	h := newHarness(t, &fakeStrategy{code: "TNT"}, &fakeStrategy{code: "WALMART"})
	ctx := context.Background()

	require.NoError(t, h.repo.SaveJob(ctx, &model.ScrapeJob{ID: "busy", StoreID: "s-wm", StoreCode: "WALMART", Status: model.JobRunning}))

	jobs := h.orch.TriggerScrapeAll(ctx)
	h.orch.Wait()

	require.Len(t, jobs, 1)
	assert.Equal(t, "TNT", jobs[0].StoreCode)
}

func TestRecoverStaleJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.repo.SaveJob(ctx, &model.ScrapeJob{ID: "j1", StoreID: "s-tnt", Status: model.JobRunning}))
	require.NoError(t, h.repo.SaveJob(ctx, &model.ScrapeJob{ID: "j2", StoreID: "s-tnt", Status: model.JobCompleted}))

	n, err := h.orch.RecoverStaleJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	j, err := h.orch.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, j.Status)
}

func TestRunnerRecoversPanics(t *testing.T) {
	r := NewRunner(nil)
	require.NoError(t, r.Go("boom", func(context.Context) error { panic("x") }))
	require.NoError(t, r.Go("ok", func(context.Context) error { return nil }))
	r.Stop()

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Submitted)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Panicked)
	assert.Equal(t, int64(0), stats.Running)

	assert.ErrorIs(t, r.Go("late", func(context.Context) error { return nil }), ErrRunnerStopped)
}

type panickingNotifier struct{}

func (panickingNotifier) Dispatch(context.Context, []model.PriceDrop) error {
	panic("sender exploded")
}

func TestDispatchPanicKeepsJobCompleted(t *testing.T) {
	h := newHarnessWith(t, func(d *Deps) { d.Notifier = panickingNotifier{} },
		&fakeStrategy{code: "TNT", listings: []model.ScrapedProduct{listing("A1", "Fuji Apples 3lb", "7")}})
	ctx := context.Background()

	require.NoError(t, h.repo.SaveProduct(ctx, &model.Product{
		ID: "p-fuji", Name: "Fuji Apples 3lb", NormalizedName: "fuji apples 3lb",
		StoreProductIDs: model.StoreProductIDs{"TNT": "A1"},
	}))
	require.NoError(t, h.repo.AppendPriceRecord(ctx, &model.PriceRecord{
		ProductID:    "p-fuji",
		StoreID:      "s-tnt",
		RegularPrice: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		CapturedAt:   time.Now().Add(-3 * time.Hour),
	}))

	job, err := h.orch.TriggerScrape(ctx, "TNT")
	require.NoError(t, err)
	h.orch.Wait()

	done, err := h.orch.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 1, done.SuccessCount)
	assert.Empty(t, done.ErrorMessages)
}

// flakyResolver panics for one store product id and delegates the rest
type flakyResolver struct {
	next   Resolver
	failID string
}

func (f *flakyResolver) Resolve(ctx context.Context, scraped model.ScrapedProduct, st *model.Store) (*model.Product, error) {
	if scraped.StoreProductID == f.failID {
		var index map[string]string
		index[scraped.StoreProductID] = st.Code
	}
	return f.next.Resolve(ctx, scraped, st)
}

func TestItemPanicIsCountedNotFatal(t *testing.T) {
	h := newHarnessWith(t, func(d *Deps) { d.Matcher = &flakyResolver{next: d.Matcher, failID: "BAD"} },
		&fakeStrategy{code: "TNT", listings: []model.ScrapedProduct{
			listing("BAD", "Broken Listing", "3"),
			listing("A1", "Fuji Apples 3lb", "7"),
		}})
	ctx := context.Background()

	job, err := h.orch.TriggerScrape(ctx, "TNT")
	require.NoError(t, err)
	h.orch.Wait()

	done, err := h.orch.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 2, done.TotalProducts)
	assert.Equal(t, 1, done.SuccessCount)
	assert.Equal(t, 1, done.ErrorCount)
	require.Len(t, done.ErrorMessages, 1)
	assert.Contains(t, done.ErrorMessages[0], "panic")
}
