package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/performance/run"
)

// WarmUp configures the warm-up period. Both thresholds must be passed
// before measurement starts.
type WarmUp struct {
	MinIterations int64
	MinDuration   time.Duration
}

// ReportManager is the reporting sink of a run.
//
// Sender tasks obtain a measurement unit from it, which also advances the
// run's iteration counter, and report the unit back when done. The manager
// feeds the Engine and the destinations, handles warm-up and publishes
// snapshots periodically.
type ReportManager struct {
	info         *run.Info
	engine       *Engine
	destinations []Destination
	interval     time.Duration
	warmUp       *WarmUp
	logger       *zap.SugaredLogger

	warmUpDone atomic.Bool
	phaseMu    sync.Mutex
	phase      Phase

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	publishMu sync.Mutex
}

// ReportOption configures a ReportManager.
type ReportOption func(*ReportManager)

// WithDestinations adds snapshot destinations.
func WithDestinations(destinations ...Destination) ReportOption {
	return func(r *ReportManager) {
		r.destinations = append(r.destinations, destinations...)
	}
}

// WithPublishInterval sets how often snapshots are published. Zero disables
// periodic publishing; a final snapshot is still published on Close.
func WithPublishInterval(interval time.Duration) ReportOption {
	return func(r *ReportManager) {
		r.interval = interval
	}
}

// WithWarmUp enables warm-up.
func WithWarmUp(w WarmUp) ReportOption {
	return func(r *ReportManager) {
		r.warmUp = &w
	}
}

// WithEngine replaces the metrics engine.
func WithEngine(e *Engine) ReportOption {
	return func(r *ReportManager) {
		r.engine = e
	}
}

// WithReportLogger sets the logger.
func WithReportLogger(logger *zap.SugaredLogger) ReportOption {
	return func(r *ReportManager) {
		r.logger = logger
	}
}

// NewReportManager creates the sink for the run described by info.
func NewReportManager(info *run.Info, options ...ReportOption) *ReportManager {
	r := &ReportManager{info: info}
	for _, opt := range options {
		opt(r)
	}
	if r.engine == nil {
		r.engine = NewEngine()
	}
	r.logger = logging.OrDefault(r.logger)
	return r
}

// RunInfo returns the run state the manager reports on.
func (r *ReportManager) RunInfo() *run.Info {
	return r.info
}

// Engine returns the metrics engine.
func (r *ReportManager) Engine() *Engine {
	return r.engine
}

// Start starts the run and the periodic publisher.
func (r *ReportManager) Start() {
	r.engine.Reset()
	if r.warmUp != nil {
		r.info.AddTag(run.TagWarmUp)
		r.engine.SetPhase(PhaseWarmUp)
		r.logger.Infow("warm-up started",
			"min_iterations", r.warmUp.MinIterations,
			"min_duration", r.warmUp.MinDuration,
		)
	}
	r.info.Start()

	if r.interval > 0 && len(r.destinations) > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.wg.Add(1)
		go r.publishLoop(ctx)
	}
}

// Stop marks the end of the run. Only the first call has an effect.
func (r *ReportManager) Stop() {
	r.info.Stop()
}

// Reset discards all statistics and restarts the run clock.
func (r *ReportManager) Reset() {
	r.engine.Reset()
	r.info.Reset()
}

// Close stops the publisher and publishes a final snapshot.
func (r *ReportManager) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			r.wg.Wait()
		}
		r.engine.SetPhase(PhaseDone)
		r.publish()
	})
}

// NewMeasurementUnit returns a fresh unit for the next iteration, or nil
// when the run is not running.
func (r *ReportManager) NewMeasurementUnit() *MeasurementUnit {
	if !r.info.IsRunning() {
		return nil
	}
	return NewMeasurementUnit(r.info.NextIteration())
}

// Report records a finished unit.
func (r *ReportManager) Report(mu *MeasurementUnit) {
	if mu == nil {
		return
	}

	r.engine.Record(mu)
	for _, d := range r.destinations {
		if o, ok := d.(UnitObserver); ok {
			o.Observe(mu)
		}
	}

	r.checkWarmUp()
}

func (r *ReportManager) checkWarmUp() {
	if r.warmUp == nil || r.warmUpDone.Load() {
		return
	}
	if r.info.Iterations() < r.warmUp.MinIterations || r.info.RunTime() < r.warmUp.MinDuration {
		return
	}
	if !r.warmUpDone.CompareAndSwap(false, true) {
		return
	}

	r.logger.Infow("warm-up finished",
		"iterations", r.info.Iterations(),
		"run_time", r.info.RunTime(),
	)
	r.Reset()
	r.info.RemoveTag(run.TagWarmUp)

	r.phaseMu.Lock()
	phase := r.phase
	r.phaseMu.Unlock()
	if phase == "" {
		phase = PhaseMain
	}
	r.engine.SetPhase(phase)
}

// SetPhase records a phase change of the run. During warm-up the phase is
// remembered and applied once warm-up ends.
func (r *ReportManager) SetPhase(phase Phase) {
	r.phaseMu.Lock()
	r.phase = phase
	r.phaseMu.Unlock()

	if r.info.HasTag(run.TagWarmUp) {
		return
	}
	r.engine.SetPhase(phase)
}

// SetThreads records a change of the worker count.
func (r *ReportManager) SetThreads(threads int) {
	r.engine.SetThreads(threads)
}

// Snapshot returns the engine snapshot enriched with run progress.
func (r *ReportManager) Snapshot() *Snapshot {
	s := r.engine.GetSnapshot()
	s.Percentage = r.info.Percentage()
	s.RunTime = r.info.RunTime()
	s.Tags = r.info.Tags()
	return s
}

func (r *ReportManager) publishLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publish()
		}
	}
}

func (r *ReportManager) publish() {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	s := r.Snapshot()
	for _, d := range r.destinations {
		d.Publish(s)
	}
}
