// Package executor drives a load generation run: it admits sender tasks
// under the limits of a scheduling strategy, resizes the worker pool as the
// strategy asks, and shuts the run down once it is over.
package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/wesleyorama2/pacer/internal/performance"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/profile"
)

// Type identifies a scheduling strategy.
type Type string

const (
	// TypeFixed runs a fixed number of workers as fast as they can go.
	TypeFixed Type = "fixed"

	// TypeConstantSpeed runs a fixed number of workers and limits
	// admissions to a target rate.
	TypeConstantSpeed Type = "constant-speed"

	// TypeRampUpDown moves the worker count through the pre, ramp-up,
	// main, ramp-down and post phases.
	TypeRampUpDown Type = "ramp-up-down"

	// TypeCustomProfile follows a profile of worker counts and rates over
	// the run's progress.
	TypeCustomProfile Type = "custom-profile"
)

const (
	// DefaultMonitoringPeriod bounds how long the admission loop blocks
	// before it re-checks whether the run is still active.
	DefaultMonitoringPeriod = time.Second

	// DefaultShutdownPeriod is the default wait between two drain checks.
	DefaultShutdownPeriod = time.Second

	// minAutoShutdownPeriod is the floor of an auto-tuned shutdown period.
	minAutoShutdownPeriod = 5 * time.Second
)

// ErrAborted is returned by Generator.Run when a sender task failure
// stopped the run under the fail-fast policy.
var ErrAborted = errors.New("run aborted")

// Config contains configuration for a generator.
type Config struct {
	// Type selects the scheduling strategy. Empty means TypeFixed.
	Type Type `json:"type" yaml:"type"`

	// Threads is the worker count of single phase strategies and the
	// default of every phase of ramp-up-down.
	Threads int `json:"threads" yaml:"threads"`

	// QueueSize is the admission capacity: how many tasks may be queued
	// or running at once.
	QueueSize int `json:"queueSize" yaml:"queueSize"`

	// MonitoringPeriod bounds every blocking wait of the admission loop
	MonitoringPeriod time.Duration `json:"monitoringPeriod" yaml:"monitoringPeriod"`

	// ShutdownPeriod is the wait between two drain checks
	ShutdownPeriod time.Duration `json:"shutdownPeriod" yaml:"shutdownPeriod"`

	// AutoShutdownPeriod tunes the shutdown period from the observed time
	// per iteration when shutdown starts. ShutdownPeriod is then ignored.
	AutoShutdownPeriod bool `json:"autoShutdownPeriod" yaml:"autoShutdownPeriod"`

	// FailFast stops the run at the first sender task failure.
	FailFast bool `json:"failFast" yaml:"failFast"`

	// Speed is the target admissions per second of constant-speed.
	Speed int `json:"speed,omitempty" yaml:"speed,omitempty"`

	// Ramp configures ramp-up-down.
	Ramp *Ramp `json:"ramp,omitempty" yaml:"ramp,omitempty"`

	// Profile drives custom-profile.
	Profile *profile.Profile `json:"-" yaml:"-"`
}

// Ramp configures the phases of the ramp-up-down strategy. Durations and
// step periods are in the units of the run's progress: milliseconds for
// time bound runs, iterations for iteration bound runs.
//
// Thread counts of zero default to Config.Threads.
type Ramp struct {
	PreThreads  int   `json:"preThreads" yaml:"preThreads"`
	PreDuration int64 `json:"preDuration" yaml:"preDuration"`

	UpStep       int   `json:"upStep" yaml:"upStep"`
	UpStepPeriod int64 `json:"upStepPeriod" yaml:"upStepPeriod"`

	MainThreads  int   `json:"mainThreads" yaml:"mainThreads"`
	MainDuration int64 `json:"mainDuration" yaml:"mainDuration"`

	DownStep       int   `json:"downStep" yaml:"downStep"`
	DownStepPeriod int64 `json:"downStepPeriod" yaml:"downStepPeriod"`

	PostThreads int `json:"postThreads" yaml:"postThreads"`
}

// withDefaults returns a copy of the ramp with thread counts resolved.
func (r Ramp) withDefaults(threads int) Ramp {
	if r.PreThreads <= 0 {
		r.PreThreads = threads
	}
	if r.MainThreads <= 0 {
		r.MainThreads = threads
	}
	if r.PostThreads <= 0 {
		r.PostThreads = threads
	}
	return r
}

// withDefaults returns a copy of the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Type == "" {
		c.Type = TypeFixed
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = performance.DefaultQueueSize
	}
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = DefaultMonitoringPeriod
	}
	if c.ShutdownPeriod <= 0 {
		c.ShutdownPeriod = DefaultShutdownPeriod
	}
	return c
}

// Validate validates the generator configuration.
func (c *Config) Validate() error {
	if c.Threads < 0 {
		return &ValidationError{Field: "threads", Message: "threads must be >= 0"}
	}
	if c.QueueSize < 0 {
		return &ValidationError{Field: "queueSize", Message: "queueSize must be >= 0"}
	}
	if c.MonitoringPeriod < 0 {
		return &ValidationError{Field: "monitoringPeriod", Message: "monitoringPeriod must be >= 0"}
	}
	if c.ShutdownPeriod < 0 {
		return &ValidationError{Field: "shutdownPeriod", Message: "shutdownPeriod must be >= 0"}
	}

	switch c.Type {
	case "", TypeFixed:

	case TypeConstantSpeed:
		if c.Speed <= 0 {
			return &ValidationError{Field: "speed", Message: "speed must be > 0"}
		}

	case TypeRampUpDown:
		if c.Ramp == nil {
			return &ValidationError{Field: "ramp", Message: "ramp configuration is required"}
		}
		return c.Ramp.validate(max(c.Threads, 1))

	case TypeCustomProfile:
		if c.Profile == nil {
			return &ValidationError{Field: "profile", Message: "profile is required"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown generator type: " + string(c.Type)}
	}

	return nil
}

func (r *Ramp) validate(threads int) error {
	if r.PreThreads < 0 || r.MainThreads < 0 || r.PostThreads < 0 {
		return &ValidationError{Field: "ramp", Message: "thread counts must be >= 0"}
	}
	if r.PreDuration < 0 || r.MainDuration < 0 {
		return &ValidationError{Field: "ramp", Message: "phase durations must be >= 0"}
	}
	if r.UpStep < 1 {
		return &ValidationError{Field: "ramp.upStep", Message: "upStep must be > 0"}
	}
	if r.DownStep < 1 {
		return &ValidationError{Field: "ramp.downStep", Message: "downStep must be > 0"}
	}
	if r.UpStepPeriod <= 0 {
		return &ValidationError{Field: "ramp.upStepPeriod", Message: "upStepPeriod must be > 0"}
	}
	if r.DownStepPeriod <= 0 {
		return &ValidationError{Field: "ramp.downStepPeriod", Message: "downStepPeriod must be > 0"}
	}

	resolved := r.withDefaults(threads)
	if resolved.MainThreads < resolved.PreThreads {
		return &ValidationError{Field: "ramp.mainThreads", Message: "mainThreads must be >= preThreads"}
	}
	if resolved.PostThreads > resolved.MainThreads {
		return &ValidationError{Field: "ramp.postThreads", Message: "postThreads must be <= mainThreads"}
	}
	return nil
}

// Stats contains real-time generator statistics.
type Stats struct {
	Type  Type          `json:"type"`
	Phase metrics.Phase `json:"phase"`

	// Threads is the current target worker count
	Threads int `json:"threads"`

	// ActiveWorkers is how many workers are running a task
	ActiveWorkers int `json:"activeWorkers"`

	// Admission
	Admitted          int64 `json:"admitted"`
	AdmissionTimeouts int64 `json:"admissionTimeouts"`
	InFlight          int64 `json:"inFlight"`

	// Tasks
	TasksCreated     int64 `json:"tasksCreated"`
	TasksCompleted   int64 `json:"tasksCompleted"`
	TasksDiscarded   int64 `json:"tasksDiscarded"`
	TaskErrors       int64 `json:"taskErrors"`
	InterruptedWaits int64 `json:"interruptedWaits"`

	// Shutdown
	ShutdownPeriod time.Duration `json:"shutdownPeriod"`
	Residual       int64         `json:"residual"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
