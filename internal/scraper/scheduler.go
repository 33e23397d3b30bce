package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"grocery-price/internal/model"
)

// Triggerer starts a scrape for every active store
type Triggerer interface {
	TriggerScrapeAll(ctx context.Context) []*model.ScrapeJob
}

// Scheduler manages periodic scraping
type Scheduler struct {
	trigger  Triggerer
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
	isRunning bool
	lastRun   time.Time
	lastJobs  int
}

// NewScheduler creates a new scheduler
func NewScheduler(trigger Triggerer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		logger:   loggerOrDefault(logger).With("component", "scheduler"),
	}
}

// Start runs one cycle immediately, then one per interval until ctx ends or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.interval)

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runCycle(ctx)
		for {
			select {
			case <-ticker.C:
				s.runCycle(ctx)
			case <-stopCh:
				s.logger.Info("scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("scheduler stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for the loop to exit. Jobs already
// handed to the runner keep going.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	s.logger.Info("starting scheduled scrape cycle")

	jobs := s.trigger.TriggerScrapeAll(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.lastJobs = len(jobs)
	s.mu.Unlock()

	s.logger.Info("scheduled scrape cycle triggered", "jobs", len(jobs), "duration", time.Since(start))
}

// Status returns the current status of the scheduler
func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScheduleStatus{
		IsRunning:   s.isRunning,
		Interval:    s.interval.String(),
		LastRun:     s.lastRun,
		LastStarted: s.lastJobs,
	}
}

// ScheduleStatus represents the scheduler status
type ScheduleStatus struct {
	IsRunning   bool      `json:"is_running"`
	Interval    string    `json:"interval"`
	LastRun     time.Time `json:"last_run"`
	LastStarted int       `json:"last_started_jobs"`
}
