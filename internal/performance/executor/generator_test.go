package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/run"
	"github.com/wesleyorama2/pacer/internal/sender"
)

var errForced = errors.New("forced send failure")

// target is shared by all senders of a test run and records what they did.
type target struct {
	delay  time.Duration
	failAt int64 // global send number that fails, zero for never

	sends atomic.Int64

	mu        sync.Mutex
	lastDone  time.Time
	firstFail time.Time
}

func (p *target) factory() sender.Factory {
	return func() (sender.Sender, error) {
		return &targetSender{p: p}, nil
	}
}

func (p *target) lastDoneAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDone
}

type targetSender struct {
	p *target
}

func (s *targetSender) Init() error  { return nil }
func (s *targetSender) Close() error { return nil }

func (s *targetSender) PreSend(context.Context, *message.Message, message.Attributes) error {
	return nil
}

func (s *targetSender) Send(ctx context.Context, msg *message.Message, _ *metrics.MeasurementUnit) (*message.Message, error) {
	n := s.p.sends.Add(1)

	if s.p.delay > 0 {
		timer := time.NewTimer(s.p.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.lastDone = time.Now()

	if s.p.failAt > 0 && n == s.p.failAt {
		s.p.firstFail = time.Now()
		return nil, errForced
	}
	return msg.Clone(), nil
}

func (s *targetSender) PostSend(context.Context, *message.Message) error { return nil }

type fixture struct {
	gen     *Generator
	info    *run.Info
	reports *metrics.ReportManager
	target  *target
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, cfg Config, period run.Period, p *target) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core).Sugar()

	info := run.NewInfo(period)
	reports := metrics.NewReportManager(info, metrics.WithReportLogger(logger))

	senders := sender.NewManager(p.factory(), 16, sender.WithManagerLogger(logger))
	require.NoError(t, senders.Init())
	t.Cleanup(func() { _ = senders.Close() })

	gen, err := New(cfg, Dependencies{
		Info:    info,
		Reports: reports,
		Senders: senders,
		Logger:  logger,
	})
	require.NoError(t, err)

	return &fixture{gen: gen, info: info, reports: reports, target: p, logs: logs}
}

func (f *fixture) assertPermitsConserved(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats := f.gen.Gate().Stats()
		return stats.Admitted == stats.Released
	}, time.Second, time.Millisecond, "every admitted task releases its permit")
}

func TestGenerator_Scenario(t *testing.T) {
	f := newFixture(t, Config{
		Threads:          2,
		QueueSize:        5,
		MonitoringPeriod: 50 * time.Millisecond,
		ShutdownPeriod:   50 * time.Millisecond,
	}, run.IterationPeriod(10), &target{})

	require.NoError(t, f.gen.Run(context.Background()))

	stats := f.gen.Stats()
	assert.Equal(t, int64(10), stats.TasksCreated)
	assert.Equal(t, int64(10), f.gen.Gate().Stats().Released)
	assert.Equal(t, int64(10), f.gen.Gate().Stats().Admitted)
	assert.Zero(t, stats.ActiveWorkers)
	assert.Equal(t, int64(10), f.info.Iterations())
	assert.Equal(t, int64(10), f.reports.Snapshot().Iterations)
	assert.Equal(t, int64(10), f.target.sends.Load())
	assert.Equal(t, 100.0, f.info.Percentage())
}

func TestGenerator_IterationBoundAdmitsExactly(t *testing.T) {
	tests := []struct {
		name       string
		iterations int64
		threads    int
		queue      int
		delay      time.Duration
	}{
		{name: "queue larger than target", iterations: 7, threads: 4, queue: 100},
		{name: "queue smaller than target", iterations: 50, threads: 3, queue: 4},
		{name: "slow senders", iterations: 12, threads: 2, queue: 3, delay: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &target{delay: tt.delay}
			f := newFixture(t, Config{
				Threads:          tt.threads,
				QueueSize:        tt.queue,
				MonitoringPeriod: 20 * time.Millisecond,
				ShutdownPeriod:   200 * time.Millisecond,
			}, run.IterationPeriod(tt.iterations), p)

			require.NoError(t, f.gen.Run(context.Background()))

			assert.Equal(t, tt.iterations, f.gen.Stats().Admitted, "no admission past the target")
			assert.Equal(t, tt.iterations, f.gen.Stats().TasksCreated)
			assert.Equal(t, tt.iterations, p.sends.Load())
			assert.Equal(t, tt.iterations, f.reports.Snapshot().Iterations)

			// The stop time includes the tail of the last iterations.
			assert.False(t, f.info.EndTime().Before(p.lastDoneAt()),
				"stop time %v recorded before the last send finished at %v", f.info.EndTime(), p.lastDoneAt())
			f.assertPermitsConserved(t)
		})
	}
}

func TestGenerator_TimeBoundStopsOnTime(t *testing.T) {
	const (
		runTime    = 300 * time.Millisecond
		monitoring = 50 * time.Millisecond
		slack      = 50 * time.Millisecond
	)

	tests := []struct {
		name  string
		delay time.Duration
	}{
		{name: "fast senders", delay: time.Millisecond},
		{name: "slow senders", delay: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{
				Threads:          2,
				QueueSize:        4,
				MonitoringPeriod: monitoring,
				ShutdownPeriod:   50 * time.Millisecond,
			}, run.TimePeriod(runTime), &target{delay: tt.delay})

			start := time.Now()
			require.NoError(t, f.gen.Run(context.Background()))
			elapsed := time.Since(start)

			assert.GreaterOrEqual(t, f.info.RunTime(), runTime)
			assert.LessOrEqual(t, f.info.RunTime(), runTime+monitoring+slack,
				"stop time excludes the drain")
			assert.GreaterOrEqual(t, elapsed, f.info.RunTime())
			f.assertPermitsConserved(t)
		})
	}
}

func TestGenerator_DrainWithoutForcedTermination(t *testing.T) {
	f := newFixture(t, Config{
		Threads:          4,
		QueueSize:        20,
		MonitoringPeriod: 50 * time.Millisecond,
		ShutdownPeriod:   time.Second,
	}, run.IterationPeriod(40), &target{delay: time.Millisecond})

	start := time.Now()
	require.NoError(t, f.gen.Run(context.Background()))

	assert.Less(t, time.Since(start), time.Second, "a drained pool does not wait a full shutdown period")
	assert.Zero(t, f.logs.FilterMessageSnippet("cannot terminate all sender tasks").Len())
	assert.Zero(t, f.gen.Stats().ActiveWorkers)
	assert.Zero(t, f.gen.Stats().Residual)
}

func TestGenerator_DrainStallForcesTermination(t *testing.T) {
	f := newFixture(t, Config{
		Threads:          2,
		QueueSize:        3,
		MonitoringPeriod: 20 * time.Millisecond,
		ShutdownPeriod:   30 * time.Millisecond,
	}, run.TimePeriod(100*time.Millisecond), &target{delay: time.Minute})

	start := time.Now()
	require.NoError(t, f.gen.Run(context.Background()), "a stalled drain is not fatal")

	assert.Less(t, time.Since(start), 5*time.Second)
	warnings := f.logs.FilterMessageSnippet("cannot terminate all sender tasks").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(3), warnings[0].ContextMap()["remaining_tasks"])
	assert.Equal(t, int64(3), f.gen.Stats().Residual)
	f.assertPermitsConserved(t)
}

func TestGenerator_FailFast(t *testing.T) {
	const monitoring = 50 * time.Millisecond
	p := &target{delay: 2 * time.Millisecond, failAt: 5}
	f := newFixture(t, Config{
		Threads:          2,
		QueueSize:        5,
		MonitoringPeriod: monitoring,
		ShutdownPeriod:   100 * time.Millisecond,
		FailFast:         true,
	}, run.TimePeriod(time.Minute), p)

	start := time.Now()
	err := f.gen.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, errForced)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Everything admitted was admitted before the abort was observed: the
	// failing send plus whatever was queued or running at that moment.
	admitted := f.gen.Stats().Admitted
	assert.LessOrEqual(t, admitted, int64(5+5+2+1))

	time.Sleep(2 * monitoring)
	assert.Equal(t, admitted, f.gen.Stats().Admitted, "no admission after the run stopped")
	assert.Equal(t, admitted, f.gen.Stats().TasksCreated)
	assert.Positive(t, f.logs.FilterMessage("aborting run after sender task failure").Len())
	f.assertPermitsConserved(t)
}

func TestGenerator_FailFastIterationBound(t *testing.T) {
	p := &target{delay: time.Millisecond, failAt: 1}
	f := newFixture(t, Config{
		Threads:          1,
		QueueSize:        50,
		MonitoringPeriod: 50 * time.Millisecond,
		ShutdownPeriod:   100 * time.Millisecond,
		FailFast:         true,
	}, run.IterationPeriod(1000), p)

	err := f.gen.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, errForced)

	// The only worker sent the failing message. Everything queued behind it
	// finds the run stopped and exits without sending.
	assert.Equal(t, int64(1), p.sends.Load())
	assert.False(t, f.info.IsRunning())
	assert.Less(t, f.gen.Stats().Admitted, int64(1000))
	assert.Equal(t, int64(1), f.reports.Snapshot().Iterations)
	f.assertPermitsConserved(t)
}

func TestGenerator_BestEffortKeepsGoing(t *testing.T) {
	p := &target{failAt: 3}
	f := newFixture(t, Config{
		Threads:          2,
		QueueSize:        5,
		MonitoringPeriod: 50 * time.Millisecond,
	}, run.IterationPeriod(20), p)

	require.NoError(t, f.gen.Run(context.Background()))

	assert.Equal(t, int64(20), f.gen.Stats().Admitted)
	assert.Equal(t, int64(1), f.gen.Stats().TaskErrors)
	assert.Equal(t, int64(1), f.reports.Snapshot().Failures)
}

func TestGenerator_RateLimited(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rate convergence test in short mode")
	}

	tests := []struct {
		name  string
		speed int
	}{
		{name: "below 1000/s keeps a minimum gap", speed: 50},
		{name: "above 1000/s admits without a gap", speed: 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, Config{
				Type:             TypeConstantSpeed,
				Threads:          4,
				QueueSize:        100,
				Speed:            tt.speed,
				MonitoringPeriod: 100 * time.Millisecond,
				ShutdownPeriod:   100 * time.Millisecond,
			}, run.TimePeriod(7*time.Second), &target{})

			done := make(chan error, 1)
			go func() { done <- f.gen.Run(context.Background()) }()

			// The first second admits a burst and then waits for it to
			// leave the window. Sampling starts between two full seconds.
			time.Sleep(1500 * time.Millisecond)
			first := f.gen.Stats().Admitted
			time.Sleep(5 * time.Second)
			second := f.gen.Stats().Admitted

			observed := float64(second-first) / 5
			assert.InDelta(t, tt.speed, observed, float64(tt.speed)*0.1, "observed %.1f admissions/s", observed)

			require.NoError(t, <-done)
		})
	}
}

func TestGenerator_RampUpDownHistory(t *testing.T) {
	f := newFixture(t, Config{
		Type:             TypeRampUpDown,
		Threads:          1,
		QueueSize:        10,
		MonitoringPeriod: 10 * time.Millisecond,
		ShutdownPeriod:   50 * time.Millisecond,
		Ramp: &Ramp{
			PreThreads:     1,
			PreDuration:    50,
			UpStep:         1,
			UpStepPeriod:   30,
			MainThreads:    3,
			MainDuration:   100,
			DownStep:       1,
			DownStepPeriod: 30,
			PostThreads:    1,
		},
	}, run.TimePeriod(600*time.Millisecond), &target{delay: time.Millisecond})

	require.NoError(t, f.gen.Run(context.Background()))

	history := f.gen.History()
	var phases []metrics.Phase
	for i, c := range history {
		assert.GreaterOrEqual(t, c.Threads, 1)
		if len(phases) == 0 || phases[len(phases)-1] != c.Phase {
			phases = append(phases, c.Phase)
		}
		if i == 0 {
			continue
		}
		prev := history[i-1]
		switch c.Phase {
		case metrics.PhaseRampUp, metrics.PhaseMain:
			assert.GreaterOrEqual(t, c.Threads, prev.Threads)
		case metrics.PhaseRampDown, metrics.PhasePost:
			assert.LessOrEqual(t, c.Threads, prev.Threads)
		}
	}
	assert.Equal(t, []metrics.Phase{
		metrics.PhasePre,
		metrics.PhaseRampUp,
		metrics.PhaseMain,
		metrics.PhaseRampDown,
		metrics.PhasePost,
	}, phases)

	engine := f.reports.Engine()
	assert.NotEmpty(t, engine.GetConcurrencyHistory())
	assert.Equal(t, metrics.PhaseDone, engine.GetPhase())
}

func TestGenerator_AutoShutdownPeriod(t *testing.T) {
	f := newFixture(t, Config{
		Threads:            2,
		QueueSize:          5,
		MonitoringPeriod:   50 * time.Millisecond,
		AutoShutdownPeriod: true,
	}, run.IterationPeriod(10), &target{})

	require.NoError(t, f.gen.Run(context.Background()))

	assert.Equal(t, minAutoShutdownPeriod, f.gen.ShutdownPeriod())
	assert.Equal(t, 1, f.logs.FilterMessage("shutdown period auto-tuned").Len())
}

func TestGenerator_ContextCancel(t *testing.T) {
	f := newFixture(t, Config{
		Threads:          2,
		QueueSize:        5,
		MonitoringPeriod: 50 * time.Millisecond,
		ShutdownPeriod:   20 * time.Millisecond,
	}, run.TimePeriod(time.Minute), &target{delay: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.gen.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, f.info.RunTime(), time.Second)
	f.assertPermitsConserved(t)
}

func TestGenerator_RunTwice(t *testing.T) {
	f := newFixture(t, Config{Threads: 1}, run.IterationPeriod(1), &target{})
	require.NoError(t, f.gen.Run(context.Background()))
	assert.Error(t, f.gen.Run(context.Background()))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	info := run.NewInfo(run.IterationPeriod(1))
	reports := metrics.NewReportManager(info)
	senders := sender.NewManager((&target{}).factory(), 1)

	tests := []struct {
		name string
		deps Dependencies
	}{
		{name: "info", deps: Dependencies{Reports: reports, Senders: senders}},
		{name: "reports", deps: Dependencies{Info: info, Senders: senders}},
		{name: "senders", deps: Dependencies{Info: info, Reports: reports}},
		{name: "period", deps: Dependencies{Info: run.NewInfo(run.Period{}), Reports: reports, Senders: senders}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}, tt.deps)
			assert.Error(t, err)
		})
	}
}
