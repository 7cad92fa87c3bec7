// Package report renders a standalone HTML report of a finished run.
package report

import (
	"sync"
	"time"

	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// Point is one published snapshot, reduced to what the report charts.
type Point struct {
	Timestamp          time.Time     `json:"timestamp"`
	Elapsed            time.Duration `json:"elapsed"`
	Percentage         float64       `json:"percentage"`
	Iterations         int64         `json:"iterations"`
	Failures           int64         `json:"failures"`
	IntervalIterations int64         `json:"intervalIterations"`
	IntervalThroughput float64       `json:"intervalThroughput"`
	IntervalErrorRate  float64       `json:"intervalErrorRate"`
	LatencyP50         time.Duration `json:"latencyP50"`
	LatencyP95         time.Duration `json:"latencyP95"`
	LatencyP99         time.Duration `json:"latencyP99"`
	Threads            int           `json:"threads"`
	Phase              metrics.Phase `json:"phase"`
}

// TimeSeries collects a Point for every snapshot published to it. Register
// it as a result destination to chart the run afterwards.
//
// # Thread Safety
//
// Publish and Points may be called concurrently.
type TimeSeries struct {
	mu     sync.Mutex
	points []Point
}

// NewTimeSeries creates an empty series.
func NewTimeSeries() *TimeSeries {
	return &TimeSeries{}
}

// Publish records the snapshot. Interval values are relative to the
// previous point; a reset engine (warm-up ending) restarts the interval.
func (ts *TimeSeries) Publish(s *metrics.Snapshot) {
	if s == nil {
		return
	}

	p := Point{
		Timestamp:  s.Timestamp,
		Elapsed:    s.RunTime,
		Percentage: s.Percentage,
		Iterations: s.Iterations,
		Failures:   s.Failures,
		LatencyP50: s.Latency.P50,
		LatencyP95: s.Latency.P95,
		LatencyP99: s.Latency.P99,
		Threads:    s.Threads,
		Phase:      s.CurrentPhase,
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	p.IntervalIterations = s.Iterations
	intervalFailures := s.Failures
	since := s.Elapsed
	if n := len(ts.points); n > 0 {
		prev := ts.points[n-1]
		if s.Iterations >= prev.Iterations {
			p.IntervalIterations = s.Iterations - prev.Iterations
			intervalFailures = s.Failures - prev.Failures
			since = s.Timestamp.Sub(prev.Timestamp)
		}
	}
	if since > 0 {
		p.IntervalThroughput = float64(p.IntervalIterations) / since.Seconds()
	}
	if p.IntervalIterations > 0 {
		p.IntervalErrorRate = float64(intervalFailures) / float64(p.IntervalIterations)
	}

	ts.points = append(ts.points, p)
}

// Points returns a copy of the recorded points.
func (ts *TimeSeries) Points() []Point {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]Point(nil), ts.points...)
}
