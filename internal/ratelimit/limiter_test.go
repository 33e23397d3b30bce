package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWithinBurst(t *testing.T) {
	l := New(3, time.Second, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()), "permit %d", i)
	}
}

func TestAcquireTimesOut(t *testing.T) {
	l := New(1, time.Hour, 20*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))

	start := time.Now()
	err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireRefills(t *testing.T) {
	l := New(1, 30*time.Millisecond, time.Second)

	require.NoError(t, l.Acquire(context.Background()))
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestAcquireCancelledContext(t *testing.T) {
	l := New(1, time.Hour, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
