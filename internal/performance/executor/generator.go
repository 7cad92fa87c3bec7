package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/run"
)

// Reporter is the reporting sink of a run together with its lifecycle.
type Reporter interface {
	performance.ReportSink

	// Start marks the start of the run.
	Start()

	// Stop records the stop time of the run. Only the first call counts.
	Stop()

	SetPhase(phase metrics.Phase)
	SetThreads(threads int)
}

var _ Reporter = (*metrics.ReportManager)(nil)

// Dependencies are the collaborators of a generator. Info, Reports and
// Senders are required.
type Dependencies struct {
	Info       *run.Info
	Reports    Reporter
	Senders    performance.SenderPool
	Validation performance.ValidationSink
	Correlator performance.Correlator
	Sequences  performance.SequenceSource
	Templates  []*message.Template
	Logger     *zap.SugaredLogger
}

// Change records one change of the worker count or phase.
type Change struct {
	Threads   int           `json:"threads"`
	Phase     metrics.Phase `json:"phase"`
	Progress  int64         `json:"progress"`
	Timestamp time.Time     `json:"timestamp"`
}

// Generator runs the admission loop of one run.
//
// # Admission
//
// While the run is active the generator takes a permit from the admission
// gate, waiting at most one monitoring period, and submits a new sender
// task to the worker pool. The strategy may delay admission (rate limits)
// and change the worker count between two admissions. Iteration bound runs
// stop after exactly the target number of admissions; the iteration counter
// itself is advanced by the workers.
//
// # Shutdown
//
// Iteration bound runs drain the pool before recording the stop time, so
// the measured duration includes the tail of the last iterations. Time
// bound runs record the stop time first and drain afterwards. Draining
// waits one shutdown period at a time for as long as tasks keep finishing,
// then once more, and finally cancels whatever is left.
//
// # Fail-fast
//
// With FailFast set, the first task failure closes the canal. The run
// state is stopped at once, so queued tasks exit without sending. The
// admission loop sees the abort within one monitoring period, stops
// admitting and shuts down normally. Run then returns an error wrapping
// ErrAborted.
//
// # Thread Safety
//
// Run must be called once. Stats and History are safe to call from other
// goroutines while Run executes.
type Generator struct {
	cfg      Config
	deps     Dependencies
	strategy Strategy
	logger   *zap.SugaredLogger

	gate    *performance.AdmissionGate
	canal   *performance.Canal
	factory *performance.TaskFactory

	poolMu sync.RWMutex
	pool   *performance.WorkerPool

	started           atomic.Bool
	admitted          atomic.Int64
	admissionTimeouts atomic.Int64
	residual          atomic.Int64
	shutdownPeriod    atomic.Int64 // time.Duration

	mu      sync.Mutex
	threads int
	phase   metrics.Phase
	history []Change
}

// New creates a generator. The config is validated and defaulted.
func New(cfg Config, deps Dependencies) (*Generator, error) {
	if deps.Info == nil {
		return nil, errors.New("run info is required")
	}
	if deps.Reports == nil {
		return nil, errors.New("reporting sink is required")
	}
	if deps.Senders == nil {
		return nil, errors.New("sender pool is required")
	}
	if err := deps.Info.Period().Validate(); err != nil {
		return nil, fmt.Errorf("invalid run period: %w", err)
	}

	logger := logging.OrDefault(deps.Logger)
	strategy, err := NewStrategy(cfg, logger)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	gate := performance.NewAdmissionGate(cfg.QueueSize)
	g := &Generator{
		cfg:      cfg,
		deps:     deps,
		strategy: strategy,
		logger:   logger,
		gate:     gate,
		canal:    performance.NewCanal(gate, cfg.FailFast),
	}
	g.shutdownPeriod.Store(int64(cfg.ShutdownPeriod))
	g.canal.OnAbort(func(error) { g.stopOnAbort() })
	g.factory = performance.NewTaskFactory(performance.TaskConfig{
		Info:       deps.Info,
		Reports:    deps.Reports,
		Senders:    deps.Senders,
		Validation: deps.Validation,
		Correlator: deps.Correlator,
		Sequences:  deps.Sequences,
		Templates:  deps.Templates,
		Logger:     logger,
	})
	return g, nil
}

// Type returns the strategy type.
func (g *Generator) Type() Type {
	return g.strategy.Type()
}

// Run generates load until the run is over, then shuts down. It returns
// nil when the run completed, an error wrapping ErrAborted when fail-fast
// stopped it, and the context error when ctx was cancelled.
func (g *Generator) Run(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return errors.New("generator already started")
	}

	threads, phase := g.strategy.Start()
	pool := performance.NewWorkerPool(ctx, threads, g.cfg.QueueSize,
		performance.WithPoolLogger(g.logger),
	)
	g.poolMu.Lock()
	g.pool = pool
	g.poolMu.Unlock()
	g.apply(threads, phase, 0)

	g.logger.Infow("starting to generate",
		"generator", g.strategy.Type(),
		"period", g.deps.Info.Period().String(),
		"threads", threads,
		"queue_size", g.gate.Capacity(),
		"fail_fast", g.cfg.FailFast,
	)
	g.deps.Reports.Start()

	runErr := g.admit(ctx)
	g.logger.Infow("reached test end, all messages were prepared to be sent",
		"admitted", g.admitted.Load(),
	)

	g.shutdown()
	if runErr == nil {
		// A task may fail after the last admission.
		if signal := g.canal.Poll(); !signal.Continue() {
			runErr = g.abort(signal)
		}
	}
	return runErr
}

// admit is the admission loop.
func (g *Generator) admit(ctx context.Context) error {
	info := g.deps.Info
	period := info.Period()
	iterationBound := period.Type == run.PeriodIteration
	monitoring := g.cfg.MonitoringPeriod

	// Waits end early on abort.
	abortCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.canal.Aborted():
			cancel()
		case <-abortCtx.Done():
		}
	}()

	var admitted int64
	wasWarmUp := false

	for {
		if signal := g.canal.Poll(); !signal.Continue() {
			return g.abort(signal)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Warm-up discards what was measured so far, admissions included.
		warmUp := info.HasTag(run.TagWarmUp)
		if wasWarmUp && !warmUp {
			admitted = 0
		}
		wasWarmUp = warmUp

		if !info.IsRunning() || (iterationBound && admitted >= period.Value) {
			// An abort stops the run state too.
			if signal := g.canal.Poll(); !signal.Continue() {
				return g.abort(signal)
			}
			return nil
		}

		progress := info.Progress()
		if threads, phase, changed := g.strategy.Tick(progress); changed {
			g.apply(threads, phase, progress)
		}

		if delay := g.strategy.Delay(time.Now()); delay > 0 {
			sleep(abortCtx, min(delay, monitoring))
			continue
		}

		if !g.gate.TryAdmit(abortCtx, monitoring) {
			g.admissionTimeouts.Add(1)
			continue
		}
		g.strategy.Admitted(time.Now())

		task := g.factory.NewTask(g.canal.Ticket())
		if err := g.poolRef().Submit(task); err != nil {
			task.Discard()
			return err
		}
		admitted++
		g.admitted.Add(1)
	}
}

func (g *Generator) abort(signal performance.Signal) error {
	g.stopOnAbort()
	g.logger.Errorw("aborting run after sender task failure",
		"error", signal.Reason,
		"admitted", g.admitted.Load(),
	)
	return fmt.Errorf("%w: %w", ErrAborted, signal.Reason)
}

// stopOnAbort stops the run state so that tasks still queued get no
// measurement unit and exit without sending.
func (g *Generator) stopOnAbort() {
	g.deps.Reports.Stop()
}

// apply propagates a worker count change: the run's advisory count first,
// then the pool, then reporting.
func (g *Generator) apply(threads int, phase metrics.Phase, progress int64) {
	threads = max(threads, 1)

	g.deps.Info.SetThreads(threads)
	g.poolRef().Resize(threads)
	g.deps.Reports.SetThreads(threads)
	g.deps.Reports.SetPhase(phase)

	g.mu.Lock()
	g.threads = threads
	g.phase = phase
	g.history = append(g.history, Change{
		Threads:   threads,
		Phase:     phase,
		Progress:  progress,
		Timestamp: time.Now(),
	})
	g.mu.Unlock()

	g.logger.Infow("concurrency changed",
		"phase", phase,
		"threads", threads,
		"progress", progress,
	)
}

func (g *Generator) shutdown() {
	if g.deps.Info.Period().Type == run.PeriodIteration {
		g.logger.Infow("waiting for all messages to be sent")
		g.drain()
		g.deps.Reports.Stop()
	} else {
		g.deps.Reports.Stop()
		g.logger.Infow("shutting down execution")
		g.drain()
	}

	pool := g.poolRef()
	pool.ShutdownNow()
	// Cancelled tasks still return their permits on the way out.
	pool.AwaitTermination(g.ShutdownPeriod())
	g.deps.Reports.SetPhase(metrics.PhaseDone)
}

// drain waits for submitted tasks to finish for as long as they keep
// finishing.
func (g *Generator) drain() {
	pool := g.poolRef()
	pool.Shutdown()

	period := g.resolveShutdownPeriod()

	outstanding := pool.Outstanding()
	var last int64
	for outstanding > 0 && outstanding != last {
		last = outstanding
		pool.AwaitTermination(period)
		outstanding = pool.Outstanding()

		g.logger.Debugw("adaptive termination in progress",
			"finished_last_round", last-outstanding,
			"outstanding", outstanding,
		)
	}

	// Tasks interrupted late may still be on their way out.
	pool.AwaitTermination(period)

	outstanding = pool.Outstanding()
	g.residual.Store(outstanding)
	if outstanding > 0 {
		g.logger.Warnw("cannot terminate all sender tasks, set a higher shutdown period",
			"remaining_tasks", outstanding,
			"active_workers", pool.ActiveCount(),
			"shutdown_period", period,
		)
	}
}

// resolveShutdownPeriod auto-tunes the shutdown period to five times the
// time a worker spent per iteration so far, at least five seconds.
func (g *Generator) resolveShutdownPeriod() time.Duration {
	if !g.cfg.AutoShutdownPeriod {
		return g.ShutdownPeriod()
	}

	info := g.deps.Info
	period := minAutoShutdownPeriod
	if iterations := info.Iterations(); iterations > 0 {
		perIteration := info.RunTime() * time.Duration(max(info.Threads(), 1)) / time.Duration(iterations)
		period = max(period, 5*perIteration)
	}
	g.shutdownPeriod.Store(int64(period))

	g.logger.Infow("shutdown period auto-tuned", "shutdown_period", period)
	return period
}

// ShutdownPeriod returns the wait between two drain checks. With
// auto-tuning it is final once shutdown started.
func (g *Generator) ShutdownPeriod() time.Duration {
	return time.Duration(g.shutdownPeriod.Load())
}

// History returns every worker count and phase change in order, the
// initial setting included.
func (g *Generator) History() []Change {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Change(nil), g.history...)
}

// Gate returns the admission gate.
func (g *Generator) Gate() *performance.AdmissionGate {
	return g.gate
}

// Stats returns a snapshot of the generator's counters.
func (g *Generator) Stats() *Stats {
	g.mu.Lock()
	threads, phase := g.threads, g.phase
	g.mu.Unlock()

	s := &Stats{
		Type:              g.strategy.Type(),
		Phase:             phase,
		Threads:           threads,
		Admitted:          g.admitted.Load(),
		AdmissionTimeouts: g.admissionTimeouts.Load(),
		InFlight:          g.gate.InFlight(),
		TasksCreated:      g.factory.Created(),
		TaskErrors:        g.canal.Errors(),
		InterruptedWaits:  g.factory.Interrupted(),
		ShutdownPeriod:    g.ShutdownPeriod(),
		Residual:          g.residual.Load(),
	}
	if pool := g.poolRef(); pool != nil {
		s.ActiveWorkers = pool.ActiveCount()
		s.TasksCompleted = pool.Completed()
		s.TasksDiscarded = pool.Discarded()
	}
	return s
}

func (g *Generator) poolRef() *performance.WorkerPool {
	g.poolMu.RLock()
	defer g.poolMu.RUnlock()
	return g.pool
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
