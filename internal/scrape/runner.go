package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRunnerStopped is returned by Go after Stop
var ErrRunnerStopped = errors.New("task runner stopped")

// RunnerStats tracks task execution
type RunnerStats struct {
	Submitted int64 `json:"submitted"`
	Running   int64 `json:"running"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

// Runner executes each submitted task on its own goroutine, detached from
// the caller's context
type Runner struct {
	logger *slog.Logger

	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	stats     RunnerStats
}

// NewRunner creates a started runner
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:    logger.With("component", "runner"),
		isRunning: true,
	}
}

// Go runs task in the background. A panic inside task is recovered and counted.
func (r *Runner) Go(name string, task func(ctx context.Context) error) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.stats.Submitted++
	r.stats.Running++
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		start := time.Now()

		err := r.run(task)

		r.mu.Lock()
		r.stats.Running--
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			r.stats.Panicked++
			r.stats.Failed++
		case err != nil:
			r.stats.Failed++
		default:
			r.stats.Succeeded++
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("task failed", "task", name, "duration", time.Since(start), "error", err)
			return
		}
		r.logger.Info("task finished", "task", name, "duration", time.Since(start))
	}()
	return nil
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (r *Runner) run(task func(ctx context.Context) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return task(context.Background())
}

// Wait blocks until every submitted task has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop rejects new tasks and waits for running ones (idempotent)
func (r *Runner) Stop() {
	r.mu.Lock()
	wasRunning := r.isRunning
	r.isRunning = false
	r.mu.Unlock()

	r.wg.Wait()
	if wasRunning {
		stats := r.Stats()
		r.logger.Info("runner stopped",
			"submitted", stats.Submitted, "succeeded", stats.Succeeded, "failed", stats.Failed, "panicked", stats.Panicked)
	}
}

// Stats returns current statistics
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
