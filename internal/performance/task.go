package performance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/run"
	"github.com/wesleyorama2/pacer/internal/sender"
)

// TaskConfig wires sender tasks to their collaborators. Reports and Senders
// are required; the rest is optional.
type TaskConfig struct {
	Info       *run.Info
	Reports    ReportSink
	Senders    SenderPool
	Validation ValidationSink
	Correlator Correlator
	Sequences  SequenceSource
	Templates  []*message.Template
	Logger     *zap.SugaredLogger
}

// TaskFactory builds the sender tasks of one run. All tasks share the
// factory's collaborators.
type TaskFactory struct {
	cfg TaskConfig

	created     atomic.Int64
	interrupted atomic.Int64
}

// NewTaskFactory creates a factory.
func NewTaskFactory(cfg TaskConfig) *TaskFactory {
	cfg.Logger = logging.OrDefault(cfg.Logger)
	for _, t := range cfg.Templates {
		t.Compile()
	}
	return &TaskFactory{cfg: cfg}
}

// NewTask creates a task holding ticket. The enqueue time is taken now.
func (f *TaskFactory) NewTask(ticket *Ticket) *SenderTask {
	f.created.Add(1)
	return &SenderTask{
		factory:  f,
		ticket:   ticket,
		enqueued: time.Now(),
	}
}

// Created returns how many tasks the factory built.
func (f *TaskFactory) Created() int64 {
	return f.created.Load()
}

// Interrupted returns how many tasks gave up waiting for a correlated
// response.
func (f *TaskFactory) Interrupted() int64 {
	return f.interrupted.Load()
}

// SenderTask is one unit of work: it sends the configured messages once,
// measures them and reports the result.
//
// # Lifecycle
//
//  1. Obtain a measurement unit; exit at once if the sink declines.
//  2. Acquire a sender.
//  3. Send every template, each as often as its multiplicity says. With a
//     correlator the request is registered before sending and the task
//     waits for the correlated response. The registration is dropped when
//     the send fails or the wait ends without a response.
//  4. Submit each response for validation and report the unit.
//  5. Release the sender and the admission permit on every path.
//
// Send failures are logged and reported through the ticket, then the task
// carries on so resources are always released.
type SenderTask struct {
	factory  *TaskFactory
	ticket   *Ticket
	enqueued time.Time
}

var (
	_ Task      = (*SenderTask)(nil)
	_ Discarder = (*SenderTask)(nil)
)

// Run executes the task. It never panics.
func (t *SenderTask) Run(ctx context.Context) {
	cfg := &t.factory.cfg
	var mu *metrics.MeasurementUnit

	defer t.ticket.AcknowledgeSend()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sender task panicked: %v", r)
			cfg.Logger.Errorw("sender task recovered from panic", "panic", r)
			t.ticket.SenderError(err)
			if mu != nil {
				mu.SetFailure(err)
				cfg.Reports.Report(mu)
			}
		}
	}()

	mu = cfg.Reports.NewMeasurementUnit()
	if mu == nil {
		return
	}

	var attrs message.Attributes
	if cfg.Sequences != nil {
		attrs = cfg.Sequences.Snapshot()
	} else {
		attrs = message.Attributes{}
	}
	if _, ok := attrs[message.AttrMessageNumber]; !ok {
		attrs[message.AttrMessageNumber] = strconv.FormatInt(mu.Iteration(), 10)
	}

	mu.SetEnqueueTime(t.enqueued)
	for k, v := range attrs {
		mu.AppendResult(k, v)
	}
	if cfg.Info != nil {
		mu.AppendResult(metrics.ResultThreads, cfg.Info.Threads())
	}

	s, err := cfg.Senders.Acquire(ctx)
	if err != nil {
		t.fail(mu, "acquire sender", err)
		cfg.Reports.Report(mu)
		return
	}
	released := false
	defer func() {
		if !released {
			cfg.Senders.Release(s)
		}
	}()

	t.sendAll(ctx, s, mu, attrs)

	cfg.Senders.Release(s)
	released = true

	cfg.Reports.Report(mu)
}

// Discard returns the permit of a task that will never run.
func (t *SenderTask) Discard() {
	t.ticket.AcknowledgeSend()
}

func (t *SenderTask) sendAll(ctx context.Context, s sender.Sender, mu *metrics.MeasurementUnit, attrs message.Attributes) {
	cfg := &t.factory.cfg
	number := attrs.Get(message.AttrMessageNumber)

	if len(cfg.Templates) == 0 {
		if cfg.Correlator != nil {
			t.fail(mu, "correlate", correlator.ErrNoTemplates)
			return
		}
		t.sendOne(ctx, s, mu, nil, nil, attrs)
		return
	}

	for _, tmpl := range cfg.Templates {
		for i := 0; i < tmpl.Repeats(); i++ {
			if ctx.Err() != nil {
				return
			}
			msg := tmpl.Filter(attrs)
			msg.SetHeader(message.HeaderMessageNumber, number)
			t.sendOne(ctx, s, mu, tmpl, msg, attrs)
		}
	}
}

// sendOne performs pre-send, send and post-send of one message, each with
// its own error handling, then waits for the correlated response if any.
func (t *SenderTask) sendOne(ctx context.Context, s sender.Sender, mu *metrics.MeasurementUnit, tmpl *message.Template, msg *message.Message, attrs message.Attributes) {
	cfg := &t.factory.cfg

	var pending *correlator.Pending
	if cfg.Correlator != nil {
		pending = correlator.NewPending()
		if err := cfg.Correlator.RegisterRequest(pending, msg, attrs); err != nil {
			t.fail(mu, "correlate", err)
			return
		}
	}

	if err := s.PreSend(ctx, msg, attrs); err != nil {
		t.fail(mu, "pre-send", err)
	}

	sentAt := time.Now()
	mu.StartMeasure()
	resp, sendErr := s.Send(ctx, msg, mu)
	if sendErr != nil {
		mu.StopMeasure()
		t.fail(mu, "send", sendErr)
		t.forget(pending, msg, attrs)
	} else if pending != nil {
		resp, sendErr = t.await(ctx, pending)
		mu.StopMeasure()
		if sendErr != nil {
			t.forget(pending, msg, attrs)
		}
	} else {
		mu.StopMeasure()
	}

	if err := s.PostSend(ctx, msg); err != nil {
		t.fail(mu, "post-send", err)
	}

	mu.AddRequestSize(msg.Size())
	mu.AddResponseSize(resp.Size())

	if cfg.Validation != nil && cfg.Validation.Enabled() {
		cfg.Validation.Submit(&message.Received{
			Template:   tmpl,
			Sent:       msg,
			Response:   resp,
			Attributes: attrs,
			SentAt:     sentAt,
			Err:        sendErr,
		})
	}
}

// forget unregisters a waiter whose response will never be read.
func (t *SenderTask) forget(pending *correlator.Pending, msg *message.Message, attrs message.Attributes) {
	if pending == nil {
		return
	}
	t.factory.cfg.Correlator.Forget(pending, msg, attrs)
}

// await blocks until the correlated response arrives or ctx is done.
// Cancellation is expected at shutdown; it is logged once per run.
func (t *SenderTask) await(ctx context.Context, pending *correlator.Pending) (*message.Message, error) {
	resp, err := pending.Wait(ctx)
	if err == nil {
		return resp, nil
	}
	if t.factory.interrupted.Add(1) == 1 {
		t.factory.cfg.Logger.Warnw("sender task interrupted while waiting for a correlated response",
			"error", err,
		)
	}
	return nil, err
}

func (t *SenderTask) fail(mu *metrics.MeasurementUnit, phase string, err error) {
	if errors.Is(err, context.Canceled) {
		// Cancelled by a forced shutdown, not a failure of the target.
		mu.SetFailure(err)
		return
	}
	t.factory.cfg.Logger.Errorw("sender task failed",
		"phase", phase,
		"iteration", mu.Iteration(),
		"error", err,
	)
	mu.SetFailure(fmt.Errorf("%s: %w", phase, err))
	t.ticket.SenderError(err)
}
