package sender

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// ErrDummyFailure is returned by the dummy sender on configured failures.
var ErrDummyFailure = errors.New("dummy sender failure")

// Dummy echoes every message back after an optional delay. It is used for
// dry runs and tests.
type Dummy struct {
	delay     time.Duration
	failEvery int64

	sends  atomic.Int64
	closed atomic.Bool
}

// NewDummy creates a dummy sender. failEvery > 0 makes every failEvery-th
// send fail.
func NewDummy(delay time.Duration, failEvery int64) *Dummy {
	return &Dummy{delay: delay, failEvery: failEvery}
}

// Init implements Sender.
func (d *Dummy) Init() error { return nil }

// Close implements Sender.
func (d *Dummy) Close() error {
	d.closed.Store(true)
	return nil
}

// PreSend implements Sender.
func (d *Dummy) PreSend(context.Context, *message.Message, message.Attributes) error { return nil }

// Send waits for the delay and echoes msg.
func (d *Dummy) Send(ctx context.Context, msg *message.Message, _ *metrics.MeasurementUnit) (*message.Message, error) {
	n := d.sends.Add(1)

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if d.failEvery > 0 && n%d.failEvery == 0 {
		return nil, ErrDummyFailure
	}
	if msg == nil {
		return nil, nil
	}
	return msg.Clone(), nil
}

// PostSend implements Sender.
func (d *Dummy) PostSend(context.Context, *message.Message) error { return nil }

// Sends returns how many sends were attempted.
func (d *Dummy) Sends() int64 {
	return d.sends.Load()
}

// Closed reports whether Close was called.
func (d *Dummy) Closed() bool {
	return d.closed.Load()
}
