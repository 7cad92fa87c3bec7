package performance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type funcTask func(ctx context.Context)

func (f funcTask) Run(ctx context.Context) { f(ctx) }

type discardTask struct {
	ran       atomic.Bool
	discarded atomic.Bool
	block     chan struct{}
}

func (d *discardTask) Run(ctx context.Context) {
	d.ran.Store(true)
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
		}
	}
}

func (d *discardTask) Discard() { d.discarded.Store(true) }

func newTestPool(t *testing.T, threads, queue int) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(context.Background(), threads, queue, WithPoolLogger(zap.NewNop().Sugar()))
	t.Cleanup(func() {
		p.ShutdownNow()
		p.AwaitTermination(time.Second)
	})
	return p
}

// trackConcurrency returns a task that records the peak number of tasks
// running at once and holds for d.
func trackConcurrency(current, peak *atomic.Int32, d time.Duration) Task {
	return funcTask(func(context.Context) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(d)
		current.Add(-1)
	})
}

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	p := newTestPool(t, 3, 100)

	var count atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(funcTask(func(context.Context) { count.Add(1) })))
	}

	p.Shutdown()
	require.True(t, p.AwaitTermination(5*time.Second))
	assert.Equal(t, int64(50), count.Load())
	assert.Equal(t, int64(50), p.Completed())
	assert.Zero(t, p.Outstanding())
	assert.Zero(t, p.ActiveCount())
	assert.True(t, p.Terminated())
}

func TestWorkerPool_LimitsConcurrency(t *testing.T) {
	p := newTestPool(t, 2, 100)

	var current, peak atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(trackConcurrency(&current, &peak, 5*time.Millisecond)))
	}
	p.Shutdown()
	require.True(t, p.AwaitTermination(5*time.Second))

	assert.Equal(t, int32(2), peak.Load())
}

func TestWorkerPool_ResizeUp(t *testing.T) {
	p := newTestPool(t, 1, 100)

	release := make(chan struct{})
	var started atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(funcTask(func(context.Context) {
			started.Add(1)
			<-release
		})))
	}

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	p.Resize(4)
	assert.Equal(t, 4, p.Size())
	require.Eventually(t, func() bool { return started.Load() == 4 }, time.Second, time.Millisecond,
		"queued tasks start right after growing")
	assert.Equal(t, 4, p.ActiveCount())

	close(release)
}

func TestWorkerPool_ResizeDownLetsRunningFinish(t *testing.T) {
	p := newTestPool(t, 4, 100)

	release := make(chan struct{})
	var finished atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(funcTask(func(context.Context) {
			<-release
			finished.Add(1)
		})))
	}
	require.Eventually(t, func() bool { return p.ActiveCount() == 4 }, time.Second, time.Millisecond)

	p.Resize(1)
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 4, p.ActiveCount(), "shrinking never interrupts running tasks")

	close(release)
	require.Eventually(t, func() bool { return finished.Load() == 4 }, time.Second, time.Millisecond)

	var current, peak atomic.Int32
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Submit(trackConcurrency(&current, &peak, 2*time.Millisecond)))
	}
	p.Shutdown()
	require.True(t, p.AwaitTermination(5*time.Second))
	assert.Equal(t, int32(1), peak.Load())
}

func TestWorkerPool_ResizeClampsToOne(t *testing.T) {
	p := newTestPool(t, 3, 10)
	p.Resize(0)
	assert.Equal(t, 1, p.Size())
	p.Resize(-5)
	assert.Equal(t, 1, p.Size())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	p := newTestPool(t, 1, 10)
	p.Shutdown()
	p.Shutdown()
	assert.ErrorIs(t, p.Submit(funcTask(func(context.Context) {})), ErrPoolShutdown)
}

func TestWorkerPool_ShutdownNowDiscardsQueued(t *testing.T) {
	p := newTestPool(t, 1, 10)

	block := make(chan struct{})
	running := &discardTask{block: block}
	require.NoError(t, p.Submit(running))
	require.Eventually(t, running.ran.Load, time.Second, time.Millisecond)

	queued := make([]*discardTask, 3)
	for i := range queued {
		queued[i] = &discardTask{}
		require.NoError(t, p.Submit(queued[i]))
	}

	p.ShutdownNow()
	require.True(t, p.AwaitTermination(time.Second), "running task sees cancellation")

	for _, d := range queued {
		assert.False(t, d.ran.Load())
		assert.True(t, d.discarded.Load())
	}
	assert.Equal(t, int64(3), p.Discarded())
	assert.Zero(t, p.Outstanding())
}

func TestWorkerPool_AwaitTerminationTimesOut(t *testing.T) {
	p := newTestPool(t, 1, 10)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(funcTask(func(context.Context) { <-release })))

	p.Shutdown()
	assert.False(t, p.AwaitTermination(20*time.Millisecond))
	assert.False(t, p.Terminated())
	assert.Equal(t, int64(1), p.Outstanding())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	p := NewWorkerPool(context.Background(), 1, 10, WithPoolLogger(zap.New(core).Sugar()))

	var after atomic.Bool
	require.NoError(t, p.Submit(funcTask(func(context.Context) { panic("boom") })))
	require.NoError(t, p.Submit(funcTask(func(context.Context) { after.Store(true) })))

	p.Shutdown()
	require.True(t, p.AwaitTermination(time.Second))
	assert.True(t, after.Load(), "worker keeps running after a panic")
	assert.Equal(t, 1, logs.FilterMessage("worker recovered from panic").Len())
}

func TestWorkerPool_ConcurrentSubmitAndResize(t *testing.T) {
	p := newTestPool(t, 2, 1000)

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = p.Submit(funcTask(func(context.Context) { count.Add(1) }))
			}
		}()
	}
	for size := 1; size <= 8; size++ {
		p.Resize(size)
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	p.Shutdown()
	require.True(t, p.AwaitTermination(5*time.Second))
	assert.Equal(t, int64(400), count.Load())
}
