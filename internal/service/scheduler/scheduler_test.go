package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadow-sync/internal/service/orchestrator"
)

type countingSyncer struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
	err     error
}

func (c *countingSyncer) RunSync(context.Context) (*orchestrator.SyncResult, error) {
	if c.running.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.running.Add(-1)
	c.calls.Add(1)
	time.Sleep(c.delay)
	return &orchestrator.SyncResult{Status: orchestrator.ResultSuccess}, c.err
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.Run(ctx))
}

func TestScheduler(t *testing.T) {
	t.Run("runs on every tick", func(t *testing.T) {
		syncer := &countingSyncer{}

		runFor(t, NewScheduler(syncer, 20*time.Millisecond, false), 110*time.Millisecond)

		assert.GreaterOrEqual(t, syncer.calls.Load(), int32(2))
	})

	t.Run("runs immediately on start", func(t *testing.T) {
		syncer := &countingSyncer{}

		runFor(t, NewScheduler(syncer, time.Hour, true), 50*time.Millisecond)

		assert.Equal(t, int32(1), syncer.calls.Load())
	})

	t.Run("waits for the interval without run on start", func(t *testing.T) {
		syncer := &countingSyncer{}

		runFor(t, NewScheduler(syncer, time.Hour, false), 30*time.Millisecond)

		assert.Zero(t, syncer.calls.Load())
	})

	t.Run("slow syncs never overlap", func(t *testing.T) {
		syncer := &countingSyncer{delay: 30 * time.Millisecond}

		runFor(t, NewScheduler(syncer, 5*time.Millisecond, true), 150*time.Millisecond)

		assert.False(t, syncer.overlap.Load())
		assert.Positive(t, syncer.calls.Load())
	})

	t.Run("keeps going after errors", func(t *testing.T) {
		syncer := &countingSyncer{err: errors.New("failed to persist sync outcome")}

		runFor(t, NewScheduler(syncer, 10*time.Millisecond, true), 60*time.Millisecond)

		assert.GreaterOrEqual(t, syncer.calls.Load(), int32(2))
	})
}
