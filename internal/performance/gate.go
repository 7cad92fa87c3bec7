package performance

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultQueueSize is the default admission capacity.
const DefaultQueueSize = 1000

// AdmissionGate bounds how many sender tasks may be in flight (queued or
// executing) at once.
//
// The generator acquires a permit before submitting a task and the task
// returns it when it finishes, whatever the outcome. A full gate is the
// normal backpressure signal, not an error: TryAdmit gives up after the
// timeout so the admission loop can re-check whether the run is still
// active.
type AdmissionGate struct {
	sem      *semaphore.Weighted
	capacity int64

	admitted atomic.Int64
	released atomic.Int64
}

// NewAdmissionGate creates a gate with the given number of permits.
func NewAdmissionGate(capacity int) *AdmissionGate {
	if capacity < 1 {
		capacity = DefaultQueueSize
	}
	return &AdmissionGate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// TryAdmit takes one permit, waiting at most timeout for one to become
// available. It returns false without consuming a permit when the timeout
// expires or ctx is done first.
func (g *AdmissionGate) TryAdmit(ctx context.Context, timeout time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	if g.sem.TryAcquire(1) {
		g.admitted.Add(1)
		return true
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		return false
	}

	g.admitted.Add(1)
	return true
}

// Release returns one permit. It panics when more permits are released than
// were admitted.
func (g *AdmissionGate) Release() {
	g.released.Add(1)
	g.sem.Release(1)
}

// Capacity returns the total number of permits.
func (g *AdmissionGate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of permits currently held.
func (g *AdmissionGate) InFlight() int64 {
	return g.admitted.Load() - g.released.Load()
}

// Stats returns the admission counters.
func (g *AdmissionGate) Stats() GateStats {
	return GateStats{
		Capacity: int(g.capacity),
		Admitted: g.admitted.Load(),
		Released: g.released.Load(),
	}
}

// GateStats contains admission counters.
type GateStats struct {
	Capacity int   `json:"capacity"`
	Admitted int64 `json:"admitted"`
	Released int64 `json:"released"`
}
