package scraper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"grocery-price/internal/model"

	"github.com/stretchr/testify/assert"
)

type countingTrigger struct{ calls int32 }

func (c *countingTrigger) TriggerScrapeAll(context.Context) []*model.ScrapeJob {
	atomic.AddInt32(&c.calls, 1)
	return []*model.ScrapeJob{{ID: "j1"}}
}

func TestSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	trig := &countingTrigger{}
	s := NewScheduler(trig, 20*time.Millisecond, nil)

	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&trig.calls) >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, s.Status().LastStarted)

	calls := atomic.LoadInt32(&trig.calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&trig.calls))
}

func TestSchedulerStopsWithContext(t *testing.T) {
	trig := &countingTrigger{}
	s := NewScheduler(trig, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&trig.calls) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
	s.Stop()
}
