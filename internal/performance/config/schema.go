// Package config provides scenario parsing and validation for pacer runs.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/sender"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// TestConfig is the root configuration of a run.
//
// Example YAML:
//
//	name: "Order API"
//	run:
//	  type: time
//	  duration: 1m
//	generator:
//	  type: ramp-up-down
//	  threads: 10
//	  ramp:
//	    preThreads: 1
//	    preDuration: 10s
//	    upStep: 3
//	    upStepPeriod: 5s
//	    mainDuration: 30s
//	    downStep: 3
//	    downStepPeriod: 5s
//	sender:
//	  type: http
//	  target: "http://localhost:8080/orders"
//	messages:
//	  - payload: '{"id": "{{id}}"}'
//	sequences:
//	  - name: id
//	    type: uuid
type TestConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Run is the length of the run
	Run RunConfig `json:"run" yaml:"run"`

	// Generator selects and tunes the scheduling strategy
	Generator GeneratorConfig `json:"generator" yaml:"generator"`

	// Sender configures the adapters that deliver messages
	Sender SenderConfig `json:"sender" yaml:"sender"`

	// Messages are the templates every sender task sends, in order
	Messages []*message.Template `json:"messages,omitempty" yaml:"messages,omitempty"`

	// Sequences provide per-task substitution values
	Sequences []SequenceConfig `json:"sequences,omitempty" yaml:"sequences,omitempty"`

	// Validation checks responses asynchronously
	Validation *ValidationConfig `json:"validation,omitempty" yaml:"validation,omitempty"`

	// Correlator matches responses arriving on the receiver with requests
	Correlator *CorrelatorConfig `json:"correlator,omitempty" yaml:"correlator,omitempty"`

	// Receiver is the HTTP endpoint correlated responses are posted to
	Receiver *ReceiverConfig `json:"receiver,omitempty" yaml:"receiver,omitempty"`

	// Reporting configures warm-up and result publishing
	Reporting ReportingConfig `json:"reporting,omitempty" yaml:"reporting,omitempty"`

	// baseDir resolves relative file references
	baseDir string
}

// Run period types.
const (
	RunTime      = "time"
	RunIteration = "iteration"
)

// RunConfig bounds the run by time or by iterations.
type RunConfig struct {
	// Type is "time" or "iteration"
	Type string `json:"type" yaml:"type"`

	// Duration is the length of a time bound run
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations is the length of an iteration bound run
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// ShutdownAuto tunes the shutdown period from the observed iteration time.
const ShutdownAuto = "auto"

// GeneratorConfig configures the scheduling strategy.
type GeneratorConfig struct {
	// Type: "fixed", "constant-speed", "ramp-up-down", "custom-profile"
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Threads is the worker count
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// QueueSize is the admission capacity
	QueueSize int `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`

	// MonitoringPeriod bounds how long admission blocks before re-checking the run
	MonitoringPeriod Duration `json:"monitoringPeriod,omitempty" yaml:"monitoringPeriod,omitempty"`

	// ShutdownPeriod is a duration or "auto"
	ShutdownPeriod string `json:"shutdownPeriod,omitempty" yaml:"shutdownPeriod,omitempty"`

	// FailFast stops the run at the first sender task failure
	FailFast bool `json:"failFast,omitempty" yaml:"failFast,omitempty"`

	// Speed is admissions per second (constant-speed)
	Speed int `json:"speed,omitempty" yaml:"speed,omitempty"`

	// Ramp configures ramp-up-down
	Ramp *RampConfig `json:"ramp,omitempty" yaml:"ramp,omitempty"`

	// Profile configures custom-profile
	Profile *ProfileConfig `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// RampConfig configures the phases of ramp-up-down. Spans are durations for
// time bound runs and iteration counts for iteration bound runs.
type RampConfig struct {
	PreThreads     int  `json:"preThreads,omitempty" yaml:"preThreads,omitempty"`
	PreDuration    Span `json:"preDuration,omitempty" yaml:"preDuration,omitempty"`
	UpStep         int  `json:"upStep,omitempty" yaml:"upStep,omitempty"`
	UpStepPeriod   Span `json:"upStepPeriod,omitempty" yaml:"upStepPeriod,omitempty"`
	MainThreads    int  `json:"mainThreads,omitempty" yaml:"mainThreads,omitempty"`
	MainDuration   Span `json:"mainDuration,omitempty" yaml:"mainDuration,omitempty"`
	DownStep       int  `json:"downStep,omitempty" yaml:"downStep,omitempty"`
	DownStepPeriod Span `json:"downStepPeriod,omitempty" yaml:"downStepPeriod,omitempty"`
	PostThreads    int  `json:"postThreads,omitempty" yaml:"postThreads,omitempty"`
}

// ProfileConfig provides the profile of custom-profile, either inline or
// from a CSV file of "time;threads;speed" lines.
type ProfileConfig struct {
	// File is a CSV profile, relative to the scenario file
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Entries is an inline profile
	Entries []ProfileEntry `json:"entries,omitempty" yaml:"entries,omitempty"`

	// AutoReplay repeats the profile when the run outlasts it
	AutoReplay *bool `json:"autoReplay,omitempty" yaml:"autoReplay,omitempty"`
}

// ProfileEntry is one inline profile line.
type ProfileEntry struct {
	At      Span `json:"at" yaml:"at"`
	Threads int  `json:"threads" yaml:"threads"`
	Speed   int  `json:"speed,omitempty" yaml:"speed,omitempty"`
}

// SenderConfig configures the sender adapters and their pool.
type SenderConfig struct {
	// Type: "http" or "dummy"
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Target is the URL of http senders, placeholders allowed
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Method         string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ExpectedStatus []int             `json:"expectedStatus,omitempty" yaml:"expectedStatus,omitempty"`
	Timeout        Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Delay and FailEvery tune the dummy sender
	Delay     Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	FailEvery int64    `json:"failEvery,omitempty" yaml:"failEvery,omitempty"`

	// Pool sizes the sender pool
	Pool PoolConfig `json:"pool,omitempty" yaml:"pool,omitempty"`

	// HTTP tunes the shared HTTP transport
	HTTP *sender.HTTPClientConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// PoolConfig sizes the sender pool.
type PoolConfig struct {
	// Size defaults to the largest worker count of the run
	Size int `json:"size,omitempty" yaml:"size,omitempty"`

	// AcquireTimeout bounds how long a task waits for a free sender
	AcquireTimeout Duration `json:"acquireTimeout,omitempty" yaml:"acquireTimeout,omitempty"`
}

// SequenceConfig declares one substitution sequence.
type SequenceConfig struct {
	Name string `json:"name" yaml:"name"`

	// Type: "number", "timestamp", "uuid", "constant"
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Start int64  `json:"start,omitempty" yaml:"start,omitempty"`
	Step  int64  `json:"step,omitempty" yaml:"step,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// ValidationConfig configures response validation.
type ValidationConfig struct {
	// Enabled defaults to true when validators are declared
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// QueueSize bounds the backlog of unvalidated responses
	QueueSize int `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`

	Validators []validation.Spec `json:"validators" yaml:"validators"`
}

// IsEnabled reports whether validation runs.
func (v *ValidationConfig) IsEnabled() bool {
	if v == nil || len(v.Validators) == 0 {
		return false
	}
	return v.Enabled == nil || *v.Enabled
}

// CorrelatorConfig selects how responses are matched with requests.
type CorrelatorConfig struct {
	// Type: "header" or "jsonpath"
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Header carries the correlation id (header type)
	Header string `json:"header,omitempty" yaml:"header,omitempty"`

	// RequestPath and ResponsePath locate the id in payloads (jsonpath type)
	RequestPath  string `json:"requestPath,omitempty" yaml:"requestPath,omitempty"`
	ResponsePath string `json:"responsePath,omitempty" yaml:"responsePath,omitempty"`
}

// ReceiverConfig configures the HTTP endpoint of correlated responses.
type ReceiverConfig struct {
	Address string `json:"address" yaml:"address"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ReportingConfig configures result publishing.
type ReportingConfig struct {
	// PublishInterval is how often snapshots are published
	PublishInterval Duration `json:"publishInterval,omitempty" yaml:"publishInterval,omitempty"`

	// WarmUp discards results until both thresholds are passed
	WarmUp *WarmUpConfig `json:"warmUp,omitempty" yaml:"warmUp,omitempty"`

	// Log publishes snapshots as log lines
	Log bool `json:"log,omitempty" yaml:"log,omitempty"`

	// PrometheusAddress serves /metrics when set
	PrometheusAddress string `json:"prometheusAddress,omitempty" yaml:"prometheusAddress,omitempty"`
}

// WarmUpConfig configures warm-up.
type WarmUpConfig struct {
	MinIterations int64    `json:"minIterations,omitempty" yaml:"minIterations,omitempty"`
	MinDuration   Duration `json:"minDuration,omitempty" yaml:"minDuration,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Span is a stretch of run progress: a duration ("30s") or a plain
// integer. Durations are kept in milliseconds.
type Span struct {
	Value      int64
	IsDuration bool
}

// Progress converts the span to progress units of a run of the given
// type: milliseconds for time runs, iterations for iteration runs. A
// duration span cannot measure an iteration run.
func (s Span) Progress(runType string) (int64, error) {
	if s.IsDuration && runType == RunIteration {
		return 0, fmt.Errorf("duration %s cannot measure an iteration bound run", time.Duration(s.Value)*time.Millisecond)
	}
	return s.Value, nil
}

func (s *Span) parse(text string) error {
	if text == "" {
		*s = Span{}
		return nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*s = Span{Value: n}
		return nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid span %q: expected an integer or a duration", text)
	}
	*s = Span{Value: d.Milliseconds(), IsDuration: true}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Span) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*s = Span{}
		return nil
	case int:
		*s = Span{Value: int64(v)}
		return nil
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("invalid span %v: expected an integer or a duration", raw)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Span) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*s = Span{}
		return nil
	case float64:
		*s = Span{Value: int64(v)}
		return nil
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("invalid span %s: expected an integer or a duration", b)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (s Span) MarshalYAML() (interface{}, error) {
	if s.IsDuration {
		return (time.Duration(s.Value) * time.Millisecond).String(), nil
	}
	return s.Value, nil
}
