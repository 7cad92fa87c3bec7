// Package metrics aggregates the measurement units reported by sender tasks
// and publishes run statistics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects and aggregates measurement units using HDR histograms.
//
// Key features:
// - HDR histograms for service time and queue latency (O(1) percentiles)
// - Lock-free counter updates for high concurrency
// - Phase and concurrency history for phased runs
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms use mutex protection.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist *hdrhistogram.Histogram
	queueHist   *hdrhistogram.Histogram
	histMu      sync.Mutex

	iterations    atomic.Int64
	failures      atomic.Int64
	requestBytes  atomic.Int64
	responseBytes atomic.Int64

	threads atomic.Int32

	currentPhase       Phase
	phaseMu            sync.RWMutex
	phaseHistory       []PhaseChange
	concurrencyHistory []ConcurrencyChange

	startMu   sync.RWMutex
	startTime time.Time

	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		latencyHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		queueHist:    hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		currentPhase: PhaseInit,
		startTime:    time.Now(),
		config:       config,
	}
}

// Record adds a measurement unit to the statistics.
func (e *Engine) Record(mu *MeasurementUnit) {
	if mu == nil {
		return
	}

	service := e.clamp(mu.TotalTime().Microseconds())
	queued := e.clamp(mu.QueueLatency().Microseconds())

	// HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
	e.histMu.Lock()
	_ = e.latencyHist.RecordValue(service)
	_ = e.queueHist.RecordValue(queued)
	e.histMu.Unlock()

	e.iterations.Add(1)
	e.requestBytes.Add(mu.RequestSize())
	e.responseBytes.Add(mu.ResponseSize())
	if mu.Failed() {
		e.failures.Add(1)
	}
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// SetPhase updates the current run phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return // No change
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:      phase,
		Timestamp:  time.Now(),
		Iterations: e.iterations.Load(),
	})
}

// GetPhase returns the current run phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetThreads records a change of the worker count.
func (e *Engine) SetThreads(threads int) {
	if int(e.threads.Swap(int32(threads))) == threads {
		return
	}

	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	e.concurrencyHistory = append(e.concurrencyHistory, ConcurrencyChange{
		Threads:   threads,
		Phase:     e.currentPhase,
		Timestamp: time.Now(),
	})
}

// GetThreads returns the current worker count.
func (e *Engine) GetThreads() int {
	return int(e.threads.Load())
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetConcurrencyHistory returns the history of worker count changes.
func (e *Engine) GetConcurrencyHistory() []ConcurrencyChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]ConcurrencyChange, len(e.concurrencyHistory))
	copy(result, e.concurrencyHistory)
	return result
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.histMu.Lock()
	latency := statsOf(e.latencyHist)
	queue := statsOf(e.queueHist)
	e.histMu.Unlock()

	e.startMu.RLock()
	start := e.startTime
	e.startMu.RUnlock()

	elapsed := time.Since(start)
	iterations := e.iterations.Load()
	failures := e.failures.Load()

	throughput := 0.0
	if elapsed.Seconds() > 0 {
		throughput = float64(iterations) / elapsed.Seconds()
	}

	errorRate := 0.0
	if iterations > 0 {
		errorRate = float64(failures) / float64(iterations)
	}

	return &Snapshot{
		Iterations:    iterations,
		Failures:      failures,
		RequestBytes:  e.requestBytes.Load(),
		ResponseBytes: e.responseBytes.Load(),
		Latency:       latency,
		QueueLatency:  queue,
		Throughput:    throughput,
		ErrorRate:     errorRate,
		Threads:       e.GetThreads(),
		CurrentPhase:  e.GetPhase(),
		Elapsed:       elapsed,
		StartTime:     start,
		Timestamp:     time.Now(),
	}
}

func statsOf(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

// Reset clears all statistics. Phase and concurrency history are kept,
// since they describe the run rather than the measurements.
func (e *Engine) Reset() {
	e.histMu.Lock()
	e.latencyHist.Reset()
	e.queueHist.Reset()
	e.histMu.Unlock()

	e.iterations.Store(0)
	e.failures.Store(0)
	e.requestBytes.Store(0)
	e.responseBytes.Store(0)

	e.startMu.Lock()
	e.startTime = time.Now()
	e.startMu.Unlock()
}
