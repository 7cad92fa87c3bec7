package performance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
)

// ErrPoolShutdown is returned by Submit once Shutdown was called.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// Task is a unit of work executed by the WorkerPool.
type Task interface {
	Run(ctx context.Context)
}

// Discarder is implemented by tasks that must clean up when the pool drops
// them without running them (after ShutdownNow).
type Discarder interface {
	Discard()
}

// WorkerPool executes submitted tasks on a resizable set of goroutines.
//
// It provides:
// - FIFO task queue shared by all workers
// - Live resizing: one limit acts as both core and maximum size
// - Orderly shutdown (drain the queue) and forced shutdown (cancel tasks)
//
// Shrinking lets running tasks finish but keeps workers from starting new
// ones until the number of running tasks is below the new limit. Growing
// spawns workers at once so queued tasks start immediately.
//
// Goroutines never keep the process alive and have no scheduling priority,
// so the pool relies on the queue being short instead.
type WorkerPool struct {
	queue chan Task

	// closeMu orders Submit against closing the queue.
	closeMu  sync.RWMutex
	shutdown bool

	mu      sync.Mutex
	cond    *sync.Cond
	limit   int
	workers int
	running int
	closing bool

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	discarded atomic.Int64
	nextID    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}

	logger *zap.SugaredLogger
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithPoolLogger sets the logger used for recovered panics.
func WithPoolLogger(logger *zap.SugaredLogger) PoolOption {
	return func(p *WorkerPool) {
		p.logger = logger
	}
}

// NewWorkerPool starts a pool with threads workers and a queue holding up
// to queueSize pending tasks. ctx is handed to every task; ShutdownNow
// cancels it.
func NewWorkerPool(ctx context.Context, threads, queueSize int, options ...PoolOption) *WorkerPool {
	if threads < 1 {
		threads = 1
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		queue:  make(chan Task, queueSize),
		ctx:    poolCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range options {
		opt(p)
	}
	p.logger = logging.OrDefault(p.logger)

	// Wake workers waiting for a run slot once tasks are cancelled.
	go func() {
		<-poolCtx.Done()
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	}()

	p.Resize(threads)
	return p
}

// Submit queues a task. It blocks while the queue is full.
func (p *WorkerPool) Submit(task Task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.shutdown {
		return ErrPoolShutdown
	}

	p.submitted.Add(1)
	select {
	case p.queue <- task:
		return nil
	case <-p.ctx.Done():
		p.submitted.Add(-1)
		return ErrPoolShutdown
	}
}

// Resize sets the number of tasks allowed to run at once. Values below one
// are raised to one.
func (p *WorkerPool) Resize(threads int) {
	if threads < 1 {
		threads = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.limit = threads
	if !p.closing {
		for p.workers < p.limit {
			p.workers++
			p.wg.Add(1)
			go p.worker(p.nextID.Add(1))
		}
	}
	p.cond.Broadcast()
}

// Size returns the current limit.
func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// ActiveCount returns the number of tasks executing right now.
func (p *WorkerPool) ActiveCount() int {
	return int(p.active.Load())
}

// Outstanding returns the number of submitted tasks that have not finished
// yet, queued or executing.
func (p *WorkerPool) Outstanding() int64 {
	return p.submitted.Load() - p.completed.Load()
}

// Completed returns the number of tasks that finished or were discarded.
func (p *WorkerPool) Completed() int64 {
	return p.completed.Load()
}

// Discarded returns the number of tasks dropped by ShutdownNow.
func (p *WorkerPool) Discarded() int64 {
	return p.discarded.Load()
}

func (p *WorkerPool) worker(id int64) {
	defer p.wg.Done()

	for task := range p.queue {
		if p.ctx.Err() != nil {
			p.discard(task)
			continue
		}

		if !p.acquireSlot() {
			p.discard(task)
			continue
		}

		p.execute(id, task)

		if p.releaseSlot() {
			return
		}
	}

	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
}

// acquireSlot waits until fewer than limit tasks are running. It returns
// false when the pool was cancelled while waiting.
func (p *WorkerPool) acquireSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running >= p.limit && p.ctx.Err() == nil {
		p.cond.Wait()
	}
	if p.ctx.Err() != nil {
		return false
	}
	p.running++
	return true
}

// releaseSlot frees a run slot and reports whether the calling worker is
// surplus and has to exit.
func (p *WorkerPool) releaseSlot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running--
	p.cond.Signal()

	if p.workers > p.limit {
		p.workers--
		return true
	}
	return false
}

func (p *WorkerPool) execute(id int64, task Task) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)

		if r := recover(); r != nil {
			p.logger.Errorw(
				"worker recovered from panic",
				"worker_id", id,
				"panic", r,
			)
		}
	}()

	task.Run(p.ctx)
}

func (p *WorkerPool) discard(task Task) {
	if d, ok := task.(Discarder); ok {
		d.Discard()
	}
	p.discarded.Add(1)
	p.completed.Add(1)
}

// Shutdown stops accepting tasks. Queued tasks still run.
func (p *WorkerPool) Shutdown() {
	p.closeMu.Lock()
	if !p.shutdown {
		p.shutdown = true
		close(p.queue)
	}
	p.closeMu.Unlock()

	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()

	p.doneOnce.Do(func() {
		go func() {
			p.wg.Wait()
			p.cancel()
			close(p.done)
		}()
	})
}

// ShutdownNow stops accepting tasks, cancels the context of running tasks
// and discards the ones still queued.
func (p *WorkerPool) ShutdownNow() {
	p.cancel()
	p.Shutdown()
}

// AwaitTermination waits up to timeout for all workers to exit after a
// shutdown. It reports whether they did.
func (p *WorkerPool) AwaitTermination(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Terminated reports whether all workers exited after a shutdown.
func (p *WorkerPool) Terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
