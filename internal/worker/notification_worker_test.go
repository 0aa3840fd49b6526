package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsJobs(t *testing.T) {
	pool := NewPool(2, 8, 0, zap.NewNop())

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		require.True(t, pool.Enqueue(func(context.Context) { ran.Add(1) }))
	}
	pool.Stop()
	assert.Equal(t, int64(5), ran.Load())
}

func TestPoolDropsWhenFull(t *testing.T) {
	pool := NewPool(1, 1, 0, zap.NewNop())

	gate := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker so the next job sits in the buffer.
	require.True(t, pool.Enqueue(func(context.Context) {
		close(started)
		<-gate
	}))
	<-started

	require.True(t, pool.Enqueue(func(context.Context) {}))
	assert.False(t, pool.Enqueue(func(context.Context) {}))

	close(gate)
	pool.Stop()
}

func TestPoolRefusesAfterStop(t *testing.T) {
	pool := NewPool(1, 4, 0, zap.NewNop())
	pool.Stop()
	assert.False(t, pool.Enqueue(func(context.Context) {}))

	// Stop is idempotent.
	pool.Stop()
}

func TestPoolSurvivesPanic(t *testing.T) {
	pool := NewPool(1, 4, 0, zap.NewNop())

	var ran atomic.Bool
	require.True(t, pool.Enqueue(func(context.Context) { panic("boom") }))
	require.True(t, pool.Enqueue(func(context.Context) { ran.Store(true) }))
	pool.Stop()
	assert.True(t, ran.Load())
}

func TestPoolAppliesTimeout(t *testing.T) {
	pool := NewPool(1, 1, time.Minute, zap.NewNop())

	deadlines := make(chan bool, 1)
	require.True(t, pool.Enqueue(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadlines <- ok
	}))
	pool.Stop()
	assert.True(t, <-deadlines)

	bare := NewPool(1, 1, 0, zap.NewNop())
	require.True(t, bare.Enqueue(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadlines <- ok
	}))
	bare.Stop()
	assert.False(t, <-deadlines)
}
