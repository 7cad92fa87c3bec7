package metrics

import (
	"maps"
	"time"
)

// Well known result names attached to measurement units.
const (
	ResultThreads      = "threads"
	ResultRequestSize  = "requestSize"
	ResultResponseSize = "responseSize"
	ResultFailed       = "failed"
)

// MeasurementUnit collects the results of one sender task.
//
// A unit is owned by the goroutine running the task until it is reported,
// so it needs no locking.
type MeasurementUnit struct {
	iteration int64

	enqueued   time.Time
	firstStart time.Time
	start      time.Time
	measuring  bool
	total      time.Duration
	last       time.Duration

	requestSize  int64
	responseSize int64

	results map[string]any
	failure error
}

// NewMeasurementUnit creates a unit for the given iteration.
func NewMeasurementUnit(iteration int64) *MeasurementUnit {
	return &MeasurementUnit{
		iteration: iteration,
		results:   make(map[string]any),
	}
}

// Iteration returns the iteration index of the unit.
func (m *MeasurementUnit) Iteration() int64 {
	return m.iteration
}

// SetEnqueueTime records when the task was admitted.
func (m *MeasurementUnit) SetEnqueueTime(t time.Time) {
	m.enqueued = t
}

// EnqueueTime returns when the task was admitted.
func (m *MeasurementUnit) EnqueueTime() time.Time {
	return m.enqueued
}

// StartMeasure starts timing one send.
func (m *MeasurementUnit) StartMeasure() {
	m.start = time.Now()
	if m.firstStart.IsZero() {
		m.firstStart = m.start
	}
	m.measuring = true
}

// StopMeasure stops timing and adds the measured span to the total.
func (m *MeasurementUnit) StopMeasure() {
	if !m.measuring {
		return
	}
	m.last = time.Since(m.start)
	m.total += m.last
	m.measuring = false
}

// TotalTime returns the sum of all measured spans.
func (m *MeasurementUnit) TotalTime() time.Duration {
	return m.total
}

// LastTime returns the most recent measured span.
func (m *MeasurementUnit) LastTime() time.Duration {
	return m.last
}

// QueueLatency returns the time between admission and the first send.
func (m *MeasurementUnit) QueueLatency() time.Duration {
	if m.enqueued.IsZero() || m.firstStart.IsZero() {
		return 0
	}
	return m.firstStart.Sub(m.enqueued)
}

// AddRequestSize accumulates sent payload bytes.
func (m *MeasurementUnit) AddRequestSize(n int64) {
	m.requestSize += n
}

// AddResponseSize accumulates received payload bytes.
func (m *MeasurementUnit) AddResponseSize(n int64) {
	m.responseSize += n
}

// RequestSize returns the accumulated request bytes.
func (m *MeasurementUnit) RequestSize() int64 {
	return m.requestSize
}

// ResponseSize returns the accumulated response bytes.
func (m *MeasurementUnit) ResponseSize() int64 {
	return m.responseSize
}

// AppendResult attaches an auxiliary result.
func (m *MeasurementUnit) AppendResult(name string, value any) {
	m.results[name] = value
}

// Result returns an auxiliary result.
func (m *MeasurementUnit) Result(name string) (any, bool) {
	v, ok := m.results[name]
	return v, ok
}

// Results returns a copy of all auxiliary results.
func (m *MeasurementUnit) Results() map[string]any {
	return maps.Clone(m.results)
}

// SetFailure marks the unit as failed. The first failure is kept.
func (m *MeasurementUnit) SetFailure(err error) {
	if m.failure == nil {
		m.failure = err
	}
}

// Failure returns the recorded failure, if any.
func (m *MeasurementUnit) Failure() error {
	return m.failure
}

// Failed reports whether a failure was recorded.
func (m *MeasurementUnit) Failed() bool {
	return m.failure != nil
}
