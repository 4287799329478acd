package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_Execute(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())

	inputs := []int{1, 2, 3, 4, 5}
	results := pool.ExecuteFunc(context.Background(), inputs, func(ctx context.Context, input int) (int, error) {
		return input * 2, nil
	})

	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.NoError(t, r.Error)
		assert.Equal(t, inputs[i], r.Input)
		assert.Equal(t, inputs[i]*2, r.Result)
		assert.False(t, r.Skipped)
	}
}

func TestWorkerPool_Empty(t *testing.T) {
	pool := NewWorkerPool[int, int](PoolConfig{})
	assert.Nil(t, pool.ExecuteFunc(context.Background(), nil, nil))
}

func TestWorkerPool_RespectsLimit(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithWorkers(2))

	var running, peak atomic.Int32
	pool.ExecuteFunc(context.Background(), make([]int, 8), func(ctx context.Context, _ int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPool_ErrorsDoNotStopOthers(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithWorkers(2).WithMetrics())
	boom := errors.New("boom")

	results := pool.ExecuteFunc(context.Background(), []int{1, 2, 3}, func(ctx context.Context, input int) (int, error) {
		if input == 2 {
			return 0, boom
		}
		return input, nil
	})

	assert.NoError(t, results[0].Error)
	assert.ErrorIs(t, results[1].Error, boom)
	assert.Equal(t, 3, results[2].Result)

	m := pool.Metrics()
	assert.Equal(t, int64(3), m.TotalTasks)
	assert.Equal(t, int64(2), m.CompletedTasks)
	assert.Equal(t, int64(1), m.FailedTasks)
}

func TestWorkerPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithMetrics())
	var calls atomic.Int32
	results := pool.ExecuteFunc(ctx, []int{1, 2, 3}, func(ctx context.Context, input int) (int, error) {
		calls.Add(1)
		return input, nil
	})

	assert.Zero(t, calls.Load())
	for i, r := range results {
		assert.True(t, r.Skipped)
		assert.ErrorIs(t, r.Error, context.Canceled)
		assert.Equal(t, i+1, r.Input)
	}
	assert.Equal(t, int64(3), pool.Metrics().SkippedTasks)
}

func TestWorkerPool_Timeout(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithWorkers(1).WithTimeout(20 * time.Millisecond))

	results := pool.ExecuteFunc(context.Background(), []int{1, 2, 3}, func(ctx context.Context, input int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.DeadlineExceeded)
	}
}

func TestWorkerPool_Metrics(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithMetrics())
	pool.ExecuteFunc(context.Background(), []int{1, 2, 3, 4, 5}, func(ctx context.Context, input int) (int, error) {
		return input * 2, nil
	})

	m := pool.Metrics()
	assert.Equal(t, int64(5), m.TotalTasks)
	assert.Equal(t, int64(5), m.CompletedTasks)
	assert.Zero(t, m.FailedTasks)
	assert.LessOrEqual(t, m.MinTaskTime, m.MaxTaskTime)
	assert.Positive(t, m.TotalDuration)
}
