// Package run tracks the progress state of a single load generation run.
package run

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PeriodType selects how the length of a run is measured.
type PeriodType string

const (
	// PeriodTime bounds the run by wall-clock time. Period values are
	// milliseconds.
	PeriodTime PeriodType = "time"

	// PeriodIteration bounds the run by the number of iterations.
	PeriodIteration PeriodType = "iteration"
)

// TagWarmUp marks a run that is still warming up.
const TagWarmUp = "warm-up"

// Period is the target length of a run.
type Period struct {
	Type  PeriodType `json:"type" yaml:"type"`
	Value int64      `json:"value" yaml:"value"`
}

// TimePeriod returns a time bounded period of the given length.
func TimePeriod(d time.Duration) Period {
	return Period{Type: PeriodTime, Value: d.Milliseconds()}
}

// IterationPeriod returns an iteration bounded period.
func IterationPeriod(n int64) Period {
	return Period{Type: PeriodIteration, Value: n}
}

// Validate checks that the period is usable.
func (p Period) Validate() error {
	switch p.Type {
	case PeriodTime, PeriodIteration:
	default:
		return fmt.Errorf("unknown period type %q", p.Type)
	}
	if p.Value <= 0 {
		return fmt.Errorf("period value must be > 0, got %d", p.Value)
	}
	return nil
}

// String renders the period for logs.
func (p Period) String() string {
	if p.Type == PeriodTime {
		return (time.Duration(p.Value) * time.Millisecond).String()
	}
	return fmt.Sprintf("%d iterations", p.Value)
}

// Info is the shared, mutable progress state of one run.
//
// The iteration counter is advanced by workers as they obtain measurement
// units, the advisory thread count by the generator. Start and stop
// timestamps are guarded by a read/write mutex since IsRunning is polled on
// every admission attempt.
//
// # Thread Safety
//
// Info is safe for concurrent use.
type Info struct {
	period Period
	now    func() time.Time

	mu        sync.RWMutex
	startTime time.Time
	endTime   time.Time
	tags      map[string]struct{}

	iterations     atomic.Int64
	threads        atomic.Int32
	lastPercentage atomic.Uint64 // math.Float64bits
}

// Option configures an Info.
type Option func(*Info)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Info) {
		i.now = now
	}
}

// NewInfo creates the run state for the given period.
func NewInfo(period Period, options ...Option) *Info {
	info := &Info{
		period: period,
		now:    time.Now,
		tags:   make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(info)
	}
	return info
}

// Period returns the configured run length.
func (i *Info) Period() Period {
	return i.period
}

// Start records the start timestamp and clears the iteration counter.
func (i *Info) Start() {
	i.mu.Lock()
	i.startTime = i.now()
	i.endTime = time.Time{}
	i.mu.Unlock()

	i.iterations.Store(0)
	i.lastPercentage.Store(0)
}

// Stop records the end timestamp. Only the first call after Start has an
// effect.
func (i *Info) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.startTime.IsZero() && i.endTime.IsZero() {
		i.endTime = i.now()
	}
}

// Reset clears progress. A run that was already started keeps running from
// a fresh start timestamp; this is how warm-up hands over to measurement.
func (i *Info) Reset() {
	i.mu.Lock()
	if !i.startTime.IsZero() {
		i.startTime = i.now()
	}
	i.endTime = time.Time{}
	i.mu.Unlock()

	i.iterations.Store(0)
	i.lastPercentage.Store(0)
}

// IsStarted reports whether Start was called.
func (i *Info) IsStarted() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return !i.startTime.IsZero()
}

// IsRunning reports whether the run has started, was not stopped, and has
// not yet reached its target length.
func (i *Info) IsRunning() bool {
	i.mu.RLock()
	started := !i.startTime.IsZero()
	stopped := !i.endTime.IsZero()
	i.mu.RUnlock()

	return started && !stopped && !i.reachedLastIteration()
}

func (i *Info) reachedLastIteration() bool {
	if i.period.Type == PeriodIteration {
		return i.iterations.Load() >= i.period.Value
	}
	return i.RunTime().Milliseconds() >= i.period.Value
}

// StartTime returns the start timestamp, zero before Start.
func (i *Info) StartTime() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.startTime
}

// EndTime returns the stop timestamp, zero while the run was not stopped.
func (i *Info) EndTime() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.endTime
}

// RunTime returns the elapsed time of the run: zero before Start, the time
// since Start while running, and the measured length once stopped.
func (i *Info) RunTime() time.Duration {
	i.mu.RLock()
	start, end := i.startTime, i.endTime
	i.mu.RUnlock()

	switch {
	case start.IsZero():
		return 0
	case end.IsZero():
		return i.now().Sub(start)
	default:
		return end.Sub(start)
	}
}

// Iterations returns the number of iterations handed out so far.
func (i *Info) Iterations() int64 {
	return i.iterations.Load()
}

// NextIteration reserves the next iteration and returns its zero based
// index.
func (i *Info) NextIteration() int64 {
	return i.iterations.Add(1) - 1
}

// Progress returns the position of the run in the units of its period:
// elapsed milliseconds for time runs, iterations for iteration runs.
func (i *Info) Progress() int64 {
	if i.period.Type == PeriodIteration {
		return i.iterations.Load()
	}
	return i.RunTime().Milliseconds()
}

// Percentage returns the progress against the target length in [0, 100].
// The value never decreases between resets.
func (i *Info) Percentage() float64 {
	progress := i.Progress()
	if progress > i.period.Value {
		progress = i.period.Value
	}

	var pct float64
	if i.period.Value > 0 {
		pct = float64(progress) * 100 / float64(i.period.Value)
	}
	pct = math.Max(0, math.Min(100, pct))

	for {
		last := i.lastPercentage.Load()
		if pct <= math.Float64frombits(last) {
			return math.Float64frombits(last)
		}
		if i.lastPercentage.CompareAndSwap(last, math.Float64bits(pct)) {
			return pct
		}
	}
}

// Threads returns the advisory worker count.
func (i *Info) Threads() int {
	return int(i.threads.Load())
}

// SetThreads updates the advisory worker count.
func (i *Info) SetThreads(n int) {
	i.threads.Store(int32(n))
}

// AddTag marks the run with tag.
func (i *Info) AddTag(tag string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tags[tag] = struct{}{}
}

// RemoveTag removes tag from the run.
func (i *Info) RemoveTag(tag string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tags, tag)
}

// HasTag reports whether tag is set.
func (i *Info) HasTag(tag string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.tags[tag]
	return ok
}

// Tags returns the sorted set of tags.
func (i *Info) Tags() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	tags := make([]string, 0, len(i.tags))
	for tag := range i.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
