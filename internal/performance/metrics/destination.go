package metrics

import (
	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
)

// Destination receives periodic snapshots.
type Destination interface {
	Publish(snapshot *Snapshot)
}

// UnitObserver is implemented by destinations that also want every
// measurement unit as it is reported.
type UnitObserver interface {
	Observe(mu *MeasurementUnit)
}

// LogDestination writes snapshots to the structured log.
type LogDestination struct {
	logger *zap.SugaredLogger
}

// NewLogDestination creates a destination logging through logger, or the
// global logger when nil.
func NewLogDestination(logger *zap.SugaredLogger) *LogDestination {
	return &LogDestination{logger: logging.OrDefault(logger)}
}

// Publish logs the snapshot at info level.
func (d *LogDestination) Publish(s *Snapshot) {
	d.logger.Infow(
		"results",
		"percentage", s.Percentage,
		"iterations", s.Iterations,
		"failures", s.Failures,
		"throughput", s.Throughput,
		"threads", s.Threads,
		"phase", s.CurrentPhase,
		"latency_p50", s.Latency.P50,
		"latency_p95", s.Latency.P95,
		"latency_p99", s.Latency.P99,
		"queue_latency_p95", s.QueueLatency.P95,
		"run_time", s.RunTime,
		"tags", s.Tags,
	)
}
