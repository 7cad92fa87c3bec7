package metrics

import "time"

// Phase represents a phase of the run.
type Phase string

const (
	// PhaseInit is the state before the run starts
	PhaseInit Phase = "init"

	// PhaseWarmUp is the warm-up period whose results are discarded
	PhaseWarmUp Phase = "warm-up"

	// PhasePre holds the initial low concurrency of a phased run
	PhasePre Phase = "pre"

	// PhaseRampUp is the phase when concurrency is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseMain is the steady phase at target concurrency
	PhaseMain Phase = "main"

	// PhaseRampDown is the phase when concurrency is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhasePost holds the final concurrency until the run ends
	PhasePost Phase = "post"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase      Phase     `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	Iterations int64     `json:"iterations"`
}

// ConcurrencyChange records a change of the worker count.
type ConcurrencyChange struct {
	Threads   int       `json:"threads"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// Iterations is the number of reported measurement units
	Iterations int64 `json:"iterations"`

	// Failures is the number of units that recorded a failure
	Failures int64 `json:"failures"`

	// RequestBytes and ResponseBytes are the accumulated payload sizes
	RequestBytes  int64 `json:"requestBytes"`
	ResponseBytes int64 `json:"responseBytes"`

	// Latency is the measured service time
	Latency LatencyStats `json:"latency"`

	// QueueLatency is the time tasks spent queued before running
	QueueLatency LatencyStats `json:"queueLatency"`

	// Throughput is iterations per second since the engine started
	Throughput float64 `json:"throughput"`

	// ErrorRate is the fraction of failed units (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// Threads is the current worker count
	Threads int `json:"threads"`

	// CurrentPhase is the current run phase
	CurrentPhase Phase `json:"currentPhase"`

	// Percentage is the run progress in [0, 100]
	Percentage float64 `json:"percentage"`

	// RunTime is the run's elapsed time
	RunTime time.Duration `json:"runTime"`

	// Tags are the run's tags at the time of the snapshot
	Tags []string `json:"tags,omitempty"`

	// Elapsed is the time since the engine started or was reset
	Elapsed time.Duration `json:"elapsed"`

	// StartTime is when the engine started or was reset
	StartTime time.Time `json:"startTime"`

	// Timestamp is when this snapshot was taken
	Timestamp time.Time `json:"timestamp"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
