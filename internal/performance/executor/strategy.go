package executor

import (
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/profile"
	"github.com/wesleyorama2/pacer/internal/performance/rate"
)

// Strategy makes the scheduling decisions of a generator: how many
// workers run and when the next task may be admitted.
//
// A strategy is driven only by the generator's admission loop, so it needs
// no locking.
type Strategy interface {
	// Type returns the strategy type.
	Type() Type

	// Start returns the worker count and phase the run begins with.
	Start() (threads int, phase metrics.Phase)

	// Tick evaluates the strategy for the run's progress. It is called
	// once per admission attempt and reports whether the worker count or
	// phase changed.
	Tick(progress int64) (threads int, phase metrics.Phase, changed bool)

	// Delay returns how long to wait before now becomes an eligible
	// admission moment. Zero means admit now.
	Delay(now time.Time) time.Duration

	// Admitted records an admission at now.
	Admitted(now time.Time)
}

// fixed keeps one worker count for the whole run.
type fixed struct {
	threads int
}

func newFixed(threads int) *fixed {
	return &fixed{threads: threads}
}

func (f *fixed) Type() Type { return TypeFixed }

func (f *fixed) Start() (int, metrics.Phase) {
	return f.threads, metrics.PhaseMain
}

func (f *fixed) Tick(int64) (int, metrics.Phase, bool) {
	return f.threads, metrics.PhaseMain, false
}

func (f *fixed) Delay(time.Time) time.Duration { return 0 }

func (f *fixed) Admitted(time.Time) {}

// constantSpeed is fixed with a rate window in front of admission.
type constantSpeed struct {
	fixed
	window *rate.Window
}

func newConstantSpeed(threads, speed int) *constantSpeed {
	return &constantSpeed{
		fixed:  fixed{threads: threads},
		window: rate.NewWindow(speed),
	}
}

func (c *constantSpeed) Type() Type { return TypeConstantSpeed }

func (c *constantSpeed) Delay(now time.Time) time.Duration {
	return c.window.Delay(now)
}

func (c *constantSpeed) Admitted(now time.Time) {
	c.window.Record(now)
}

// rampUpDown is the five phase state machine. Phases only move forward:
// pre, ramp-up, main, ramp-down, post.
type rampUpDown struct {
	ramp   Ramp
	logger *zap.SugaredLogger

	phase   metrics.Phase
	threads int
	last    int64 // progress of the last change
}

func newRampUpDown(ramp Ramp, threads int, logger *zap.SugaredLogger) *rampUpDown {
	return &rampUpDown{
		ramp:   ramp.withDefaults(threads),
		logger: logger,
	}
}

func (r *rampUpDown) Type() Type { return TypeRampUpDown }

func (r *rampUpDown) Start() (int, metrics.Phase) {
	r.phase = metrics.PhasePre
	r.threads = r.ramp.PreThreads
	r.last = 0
	return r.threads, r.phase
}

func (r *rampUpDown) Tick(progress int64) (int, metrics.Phase, bool) {
	changed := false

	switch r.phase {
	case metrics.PhasePre:
		if progress >= r.ramp.PreDuration {
			r.phase = metrics.PhaseRampUp
			r.threads = min(r.threads+r.ramp.UpStep, r.ramp.MainThreads)
			r.last = progress
			changed = true
		}

	case metrics.PhaseRampUp:
		if progress-r.last >= r.ramp.UpStepPeriod {
			next := r.threads + r.ramp.UpStep
			if next >= r.ramp.MainThreads {
				next = r.ramp.MainThreads
				r.phase = metrics.PhaseMain
			}
			r.threads = next
			r.last = progress
			changed = true
		}

	case metrics.PhaseMain:
		if progress-r.last >= r.ramp.MainDuration {
			r.phase = metrics.PhaseRampDown
			r.threads = r.lower(r.threads - r.ramp.DownStep)
			r.last = progress
			changed = true
		}

	case metrics.PhaseRampDown:
		if progress-r.last >= r.ramp.DownStepPeriod {
			next := r.lower(r.threads - r.ramp.DownStep)
			if next <= r.ramp.PostThreads {
				r.phase = metrics.PhasePost
			}
			r.threads = next
			r.last = progress
			changed = true
		}
	}

	return r.threads, r.phase, changed
}

// lower clamps a decreased worker count to the post level.
func (r *rampUpDown) lower(next int) int {
	if next < 1 {
		r.logger.Warnw("attempt to decrease the thread count below 1 in ramp-down phase",
			"requested", next,
			"threads", r.ramp.PostThreads,
		)
	}
	return max(next, r.ramp.PostThreads, 1)
}

func (r *rampUpDown) Delay(time.Time) time.Duration { return 0 }

func (r *rampUpDown) Admitted(time.Time) {}

// customProfile reconfigures the worker count and rate whenever the run's
// progress moves. A speed of zero admits without a rate limit.
type customProfile struct {
	profile *profile.Profile

	threads  int
	speed    int
	window   *rate.Window
	progress int64
}

func newCustomProfile(p *profile.Profile) *customProfile {
	return &customProfile{profile: p, progress: -1}
}

func (c *customProfile) Type() Type { return TypeCustomProfile }

func (c *customProfile) Start() (int, metrics.Phase) {
	req := c.profile.At(0)
	c.threads = max(req.Threads, 1)
	c.setSpeed(req.Speed)
	c.progress = 0
	return c.threads, metrics.PhaseMain
}

func (c *customProfile) Tick(progress int64) (int, metrics.Phase, bool) {
	if progress == c.progress {
		return c.threads, metrics.PhaseMain, false
	}
	c.progress = progress

	req := c.profile.At(progress)
	c.setSpeed(req.Speed)

	threads := max(req.Threads, 1)
	if threads == c.threads {
		return c.threads, metrics.PhaseMain, false
	}
	c.threads = threads
	return c.threads, metrics.PhaseMain, true
}

// setSpeed resets the window on every change of the target speed.
func (c *customProfile) setSpeed(speed int) {
	if speed == c.speed && (speed <= 0 || c.window != nil) {
		return
	}
	c.speed = speed

	switch {
	case speed <= 0:
		c.window = nil
	case c.window == nil:
		c.window = rate.NewWindow(speed)
	default:
		c.window.SetRate(speed)
	}
}

func (c *customProfile) Delay(now time.Time) time.Duration {
	if c.window == nil {
		return 0
	}
	return c.window.Delay(now)
}

func (c *customProfile) Admitted(now time.Time) {
	if c.window != nil {
		c.window.Record(now)
	}
}

// Speed returns the current target speed, zero when unlimited.
func (c *customProfile) Speed() int {
	return c.speed
}
