package performance

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Signal is what the admission loop reads from a Canal.
type Signal struct {
	// Abort is set when a sender task requested the run to stop.
	Abort bool
	// Reason is the error that triggered the abort.
	Reason error
}

// Continue reports whether the run may keep admitting tasks.
func (s Signal) Continue() bool {
	return !s.Abort
}

// Canal is the per-run channel between sender tasks and the generator.
//
// Tasks use their Ticket to give back the admission permit and to report
// send failures. When fail-fast is enabled the first reported failure turns
// into an abort signal; later failures are counted but do not replace the
// reason. Many tasks write, the admission loop is the only reader.
type Canal struct {
	gate     *AdmissionGate
	failFast bool

	abortOnce sync.Once
	aborted   chan struct{}
	reason    error
	onAbort   func(reason error)

	errors atomic.Int64
}

// NewCanal creates the channel for one run.
func NewCanal(gate *AdmissionGate, failFast bool) *Canal {
	return &Canal{
		gate:     gate,
		failFast: failFast,
		aborted:  make(chan struct{}),
	}
}

// Ticket hands out the handle for one admitted task.
func (c *Canal) Ticket() *Ticket {
	return &Ticket{canal: c}
}

// OnAbort registers fn to run once, on the failing task's goroutine, right
// after the abort is signalled and before the task returns. It must be set
// before the first ticket is handed out.
func (c *Canal) OnAbort(fn func(reason error)) {
	c.onAbort = fn
}

// FailFast reports whether send failures abort the run.
func (c *Canal) FailFast() bool {
	return c.failFast
}

// Aborted returns a channel that is closed once the run was aborted.
func (c *Canal) Aborted() <-chan struct{} {
	return c.aborted
}

// Poll returns the current signal without blocking.
func (c *Canal) Poll() Signal {
	select {
	case <-c.aborted:
		return Signal{Abort: true, Reason: c.reason}
	default:
		return Signal{}
	}
}

// Errors returns how many send failures were reported during the run.
func (c *Canal) Errors() int64 {
	return c.errors.Load()
}

func (c *Canal) senderError(err error) {
	c.errors.Add(1)
	if !c.failFast {
		return
	}
	if err == nil {
		err = errors.New("sender task failed")
	}
	c.abortOnce.Do(func() {
		c.reason = err
		close(c.aborted)
		if c.onAbort != nil {
			c.onAbort(err)
		}
	})
}

// Ticket is the handle a single sender task holds on the Canal.
type Ticket struct {
	canal    *Canal
	released atomic.Bool
}

// AcknowledgeSend returns the task's admission permit. Only the first call
// has an effect.
func (t *Ticket) AcknowledgeSend() {
	if t.released.CompareAndSwap(false, true) {
		t.canal.gate.Release()
	}
}

// SenderError reports a failure of the task. It aborts the run only when
// fail-fast is enabled.
func (t *Ticket) SenderError(err error) {
	t.canal.senderError(err)
}

// Released reports whether the permit was already returned.
func (t *Ticket) Released() bool {
	return t.released.Load()
}
