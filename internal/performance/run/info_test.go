package run

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPeriod_Validate(t *testing.T) {
	tests := []struct {
		name    string
		period  Period
		wantErr bool
	}{
		{"time", TimePeriod(time.Second), false},
		{"iteration", IterationPeriod(10), false},
		{"zero value", IterationPeriod(0), true},
		{"unknown type", Period{Type: "laps", Value: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.period.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInfo_IterationLifecycle(t *testing.T) {
	info := NewInfo(IterationPeriod(3))

	assert.False(t, info.IsStarted())
	assert.False(t, info.IsRunning())
	assert.Zero(t, info.RunTime())

	info.Start()
	require.True(t, info.IsRunning())

	for want := int64(0); want < 3; want++ {
		require.True(t, info.IsRunning())
		assert.Equal(t, want, info.NextIteration())
	}

	assert.False(t, info.IsRunning(), "run must end after the last iteration")
	assert.Equal(t, int64(3), info.Iterations())
	assert.Equal(t, 100.0, info.Percentage())
}

func TestInfo_TimeLifecycle(t *testing.T) {
	clock := newFakeClock()
	info := NewInfo(TimePeriod(10*time.Second), WithClock(clock.Now))

	info.Start()
	clock.Advance(4 * time.Second)

	assert.True(t, info.IsRunning())
	assert.Equal(t, 4*time.Second, info.RunTime())
	assert.Equal(t, int64(4000), info.Progress())
	assert.InDelta(t, 40.0, info.Percentage(), 0.001)

	clock.Advance(6 * time.Second)
	assert.False(t, info.IsRunning())
	assert.Equal(t, 100.0, info.Percentage())
}

func TestInfo_StopFreezesRunTime(t *testing.T) {
	clock := newFakeClock()
	info := NewInfo(TimePeriod(time.Minute), WithClock(clock.Now))

	info.Start()
	clock.Advance(2 * time.Second)
	info.Stop()
	clock.Advance(5 * time.Second)
	info.Stop()

	assert.False(t, info.IsRunning())
	assert.Equal(t, 2*time.Second, info.RunTime())
}

func TestInfo_ResetKeepsRunning(t *testing.T) {
	clock := newFakeClock()
	info := NewInfo(IterationPeriod(10), WithClock(clock.Now))

	info.Start()
	info.NextIteration()
	info.NextIteration()
	clock.Advance(time.Second)

	info.Reset()

	assert.True(t, info.IsRunning())
	assert.Zero(t, info.Iterations())
	assert.Zero(t, info.RunTime())
}

func TestInfo_PercentageIsMonotonic(t *testing.T) {
	info := NewInfo(IterationPeriod(4))
	info.Start()

	info.NextIteration()
	info.NextIteration()
	assert.Equal(t, 50.0, info.Percentage())

	// Percentage must not go backwards even if progress is read lower.
	info.iterations.Store(1)
	assert.Equal(t, 50.0, info.Percentage())
}

func TestInfo_ConcurrentIterations(t *testing.T) {
	info := NewInfo(IterationPeriod(1000))
	info.Start()

	var wg sync.WaitGroup
	seen := make([]bool, 1000)
	var mu sync.Mutex
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx := info.NextIteration()
				mu.Lock()
				seen[idx] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for idx, ok := range seen {
		if !ok {
			t.Fatalf("iteration %d was never handed out", idx)
		}
	}
}

func TestInfo_Tags(t *testing.T) {
	info := NewInfo(IterationPeriod(1))

	info.AddTag(TagWarmUp)
	info.AddTag("custom")
	assert.True(t, info.HasTag(TagWarmUp))
	assert.Equal(t, []string{"custom", TagWarmUp}, info.Tags())

	info.RemoveTag(TagWarmUp)
	assert.False(t, info.HasTag(TagWarmUp))
}

func TestInfo_Threads(t *testing.T) {
	info := NewInfo(IterationPeriod(1))
	info.SetThreads(7)
	assert.Equal(t, 7, info.Threads())
}
