// Package rate provides admission rate limiting for the generator.
package rate

import (
	"sync"
	"sync/atomic"
	"time"
)

// window is the span the admission buffer represents.
const window = time.Second

// Window limits admissions to a target number per second using a circular
// buffer of the most recent admission timestamps.
//
// # Algorithm
//
// The buffer holds exactly speed timestamps. A moment is eligible when the
// oldest recorded timestamp is more than one second old, i.e. fewer than
// speed admissions happened during the last second. For targets below 1000
// per second a minimum gap of 1000/speed milliseconds between two
// admissions is enforced on top, which spreads admissions over the second
// instead of admitting them back to back.
//
// Changing the speed reallocates the buffer filled with zero timestamps.
// Every slot then looks ancient, so the window admits a burst of up to
// speed tasks right after the change. Profile driven runs rely on this to
// reach a new target quickly.
//
// # Thread Safety
//
// Window is safe for concurrent use, although the generator only calls it
// from the admission loop.
//
// # Example
//
//	w := NewWindow(100) // 100 admissions per second
//
//	for {
//	    now := time.Now()
//	    if !w.Eligible(now) {
//	        time.Sleep(w.Delay(now))
//	        continue
//	    }
//	    // admit
//	    w.Record(now)
//	}
type Window struct {
	mu       sync.Mutex
	speed    int
	buffer   []int64 // unix milliseconds
	pointer  int
	minGapMs int64

	// Metrics
	admitted atomic.Int64
	rejected atomic.Int64
}

// NewWindow creates a limiter for speed admissions per second.
//
// Parameters:
//   - speed: Target admissions per second (values < 1 are raised to 1)
func NewWindow(speed int) *Window {
	w := &Window{}
	w.resize(speed)
	return w
}

func (w *Window) resize(speed int) {
	if speed < 1 {
		speed = 1
	}
	w.speed = speed
	w.buffer = make([]int64, speed)
	w.pointer = 0
	w.minGapMs = int64(window/time.Millisecond) / int64(speed)
}

// oldest returns the slot that will be overwritten by the next Record.
func (w *Window) oldest() int64 {
	return w.buffer[(w.pointer+1)%w.speed]
}

// last returns the most recently recorded timestamp.
func (w *Window) last() int64 {
	return w.buffer[w.pointer]
}

// Eligible reports whether now is an admissible moment.
func (w *Window) Eligible(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	ok := w.eligible(now.UnixMilli())
	if !ok {
		w.rejected.Add(1)
	}
	return ok
}

func (w *Window) eligible(ms int64) bool {
	if ms-w.oldest() <= int64(window/time.Millisecond) {
		return false
	}
	return w.minGapMs == 0 || ms-w.minGapMs >= w.last()
}

// Record stores an admission at now and advances the cursor.
func (w *Window) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pointer = (w.pointer + 1) % w.speed
	w.buffer[w.pointer] = now.UnixMilli()
	w.admitted.Add(1)
}

// Delay returns how long the caller has to wait from now until the next
// admission could become eligible. It returns zero when now is eligible.
func (w *Window) Delay(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms := now.UnixMilli()
	if w.eligible(ms) {
		return 0
	}

	wait := w.oldest() + int64(window/time.Millisecond) + 1 - ms
	if w.minGapMs > 0 {
		if gap := w.last() + w.minGapMs - ms; gap > wait {
			wait = gap
		}
	}
	if wait < 1 {
		wait = 1
	}
	return time.Duration(wait) * time.Millisecond
}

// SetRate changes the target speed. The buffer is reset to zeros, which
// opens a burst window right after the change.
func (w *Window) SetRate(speed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resize(speed)
}

// GetRate returns the current target speed.
func (w *Window) GetRate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speed
}

// Stats returns statistics about the window's operation.
func (w *Window) Stats() WindowStats {
	w.mu.Lock()
	speed := w.speed
	gap := w.minGapMs
	w.mu.Unlock()

	return WindowStats{
		Speed:    speed,
		MinGap:   time.Duration(gap) * time.Millisecond,
		Admitted: w.admitted.Load(),
		Rejected: w.rejected.Load(),
	}
}

// WindowStats contains statistics about the window.
type WindowStats struct {
	Speed    int           `json:"speed"`    // Target admissions per second
	MinGap   time.Duration `json:"minGap"`   // Enforced gap between admissions, zero above 1000/s
	Admitted int64         `json:"admitted"` // Recorded admissions
	Rejected int64         `json:"rejected"` // Eligibility checks that said no
}
