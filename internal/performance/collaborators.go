package performance

import (
	"context"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/sender"
	"github.com/wesleyorama2/pacer/internal/sequence"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// ReportSink receives the measurements of sender tasks.
//
// NewMeasurementUnit returns nil when no measurement is wanted, e.g. once
// the run is over; the task then exits without sending.
type ReportSink interface {
	NewMeasurementUnit() *metrics.MeasurementUnit
	Report(mu *metrics.MeasurementUnit)
}

// SenderPool hands out sender instances.
type SenderPool interface {
	Acquire(ctx context.Context) (sender.Sender, error)
	Release(s sender.Sender)
}

// ValidationSink accepts received messages for asynchronous validation.
// Submit must not block.
type ValidationSink interface {
	Enabled() bool
	Submit(r *message.Received)
}

// Correlator matches responses arriving on a separate channel with the
// requests that caused them. Forget drops a waiter that will never be
// answered.
type Correlator interface {
	RegisterRequest(w correlator.Waiter, msg *message.Message, attrs message.Attributes) error
	Forget(w correlator.Waiter, msg *message.Message, attrs message.Attributes)
}

// SequenceSource provides the substitution values of one task.
type SequenceSource interface {
	Snapshot() message.Attributes
}

var (
	_ ReportSink        = (*metrics.ReportManager)(nil)
	_ SenderPool        = (*sender.Manager)(nil)
	_ ValidationSink    = (*validation.Manager)(nil)
	_ Correlator        = (*correlator.Correlator)(nil)
	_ SequenceSource    = (*sequence.Manager)(nil)
	_ correlator.Waiter = (*correlator.Pending)(nil)
)
