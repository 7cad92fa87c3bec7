package perf_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pacer/perf"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []*perf.Snapshot
}

func (r *recorder) Publish(s *perf.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func dummyConfig(iterations int64) *perf.Config {
	return &perf.Config{
		Name: "library",
		Run:  perf.RunConfig{Type: perf.RunIteration, Iterations: iterations},
		Generator: perf.GeneratorConfig{
			Type:    "fixed",
			Threads: 4,
		},
		Sender:    perf.SenderConfig{Type: "dummy"},
		Messages:  []*perf.Message{{Payload: "order {{id}}"}},
		Sequences: []perf.SequenceConfig{{Name: "id"}},
	}
}

func TestRunTest(t *testing.T) {
	result, err := perf.RunTest(context.Background(), dummyConfig(25))
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, "library", result.Name)
	assert.Equal(t, int64(25), result.Metrics.Iterations)
}

func TestRunner_Destinations(t *testing.T) {
	rec := &recorder{}
	runner := perf.NewRunner(dummyConfig(10), perf.WithDestinations(rec))
	assert.Nil(t, runner.GetMetrics(), "no metrics before Run")

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, rec.count(), "the final snapshot is always published")
	assert.Equal(t, int64(10), runner.GetMetrics().Iterations)
}

func TestRunner_InvalidConfig(t *testing.T) {
	cfg := dummyConfig(10)
	cfg.Generator.Type = "warp-speed"

	result, err := perf.NewRunner(cfg).Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRunner_Stop(t *testing.T) {
	cfg := &perf.Config{
		Name:      "stoppable",
		Run:       perf.RunConfig{Type: perf.RunIteration, Iterations: 1 << 40},
		Generator: perf.GeneratorConfig{Type: "fixed", Threads: 2},
		Sender:    perf.SenderConfig{Type: "dummy"},
		Messages:  []*perf.Message{{Payload: "ping"}},
	}
	runner := perf.NewRunner(cfg)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		m := runner.GetMetrics()
		return m != nil && m.Iterations > 0
	}, 5*time.Second, 10*time.Millisecond)

	runner.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"run": {"type": "iteration", "iterations": 5},
		"sender": {"type": "dummy"},
		"messages": [{"payload": "ping"}]
	}`), 0o644))

	cfg, err := perf.LoadConfig(path)
	require.NoError(t, err)

	result, err := perf.RunTest(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Metrics.Iterations)
}
