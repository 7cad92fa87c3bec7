package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/executor"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// Test server types for different scenarios
type serverType int

const (
	serverNormal serverType = iota
	serverError
)

// createTestServer creates a test HTTP server with the specified behavior.
func createTestServer(st serverType, requests *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		switch st {
		case serverNormal:
			time.Sleep(2 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))

		case serverError:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"server error"}`))
		}
	}))
}

func newTestConfig(target string) *config.TestConfig {
	return &config.TestConfig{
		Name: "Integration",
		Run:  config.RunConfig{Type: config.RunIteration, Iterations: 50},
		Generator: config.GeneratorConfig{
			Threads:          4,
			QueueSize:        16,
			MonitoringPeriod: config.Duration(100 * time.Millisecond),
			ShutdownPeriod:   "200ms",
		},
		Sender: config.SenderConfig{
			Type:   "http",
			Target: target,
		},
		Messages: []*message.Template{
			{Payload: `{"n": "{{n}}"}`},
		},
		Sequences: []config.SequenceConfig{
			{Name: "n"},
		},
	}
}

func runEngine(t *testing.T, cfg *config.TestConfig, options ...Option) (*TestResult, error) {
	t.Helper()

	engine, err := NewEngine(cfg, options...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return engine.Run(ctx)
}

func TestEngineIntegration_IterationBound(t *testing.T) {
	var requests atomic.Int64
	server := createTestServer(serverNormal, &requests)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Validation = &config.ValidationConfig{Validators: []validation.Spec{
		{ID: "ok", Type: validation.TypeRegExp, Pattern: `"status":"ok"`},
	}}

	result, err := runEngine(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, "Integration", result.Name)
	assert.Equal(t, executor.TypeFixed, result.Generator)
	assert.Equal(t, int64(50), result.Metrics.Iterations)
	assert.Equal(t, int64(50), requests.Load())
	assert.Zero(t, result.Metrics.Failures)
	assert.Equal(t, 100.0, result.Metrics.Percentage)
	assert.Positive(t, result.Metrics.Latency.P95)
	assert.False(t, result.EndTime.Before(result.StartTime))

	assert.Equal(t, int64(50), result.Stats.Admitted)
	assert.Zero(t, result.Stats.Residual)
	require.NotNil(t, result.Validation)
	assert.Equal(t, int64(50), result.Validation.Passed)
	assert.True(t, result.Passed)
	assert.GreaterOrEqual(t, result.Senders.Size, 4)
}

func TestEngineIntegration_ValidationFailureFailsRun(t *testing.T) {
	var requests atomic.Int64
	server := createTestServer(serverNormal, &requests)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Run.Iterations = 10
	cfg.Validation = &config.ValidationConfig{Validators: []validation.Spec{
		{ID: "missing", Type: validation.TypeJSONPath, Path: "status", Expected: "degraded"},
	}}

	result, err := runEngine(t, cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Validation)
	assert.Equal(t, int64(10), result.Validation.Failed)
	assert.False(t, result.Passed)
}

func TestEngineIntegration_FailFast(t *testing.T) {
	var requests atomic.Int64
	server := createTestServer(serverError, &requests)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Run.Iterations = 10_000
	cfg.Generator.FailFast = true

	result, err := runEngine(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrAborted)
	require.NotNil(t, result)
	assert.True(t, result.Aborted)
	assert.False(t, result.Passed)
	assert.Less(t, requests.Load(), int64(10_000))
	assert.Contains(t, result.Error, "run aborted")
}

func TestEngineIntegration_ErrorsWithoutFailFast(t *testing.T) {
	var requests atomic.Int64
	server := createTestServer(serverError, &requests)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Run.Iterations = 20

	result, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.Metrics.Failures)
	assert.Equal(t, 1.0, result.Metrics.ErrorRate)
	assert.Equal(t, int64(20), result.Stats.TaskErrors)
}

func TestEngineIntegration_ConstantSpeed(t *testing.T) {
	if testing.Short() {
		t.Skip("time bound run")
	}

	var requests atomic.Int64
	server := createTestServer(serverNormal, &requests)
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Run = config.RunConfig{Type: config.RunTime, Duration: config.Duration(time.Second)}
	cfg.Generator.Type = string(executor.TypeConstantSpeed)
	cfg.Generator.Speed = 20

	result, err := runEngine(t, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 20, result.Metrics.Iterations, 6)
	assert.GreaterOrEqual(t, result.Duration, time.Second)
	assert.Less(t, result.Duration, 2*time.Second)
}

func TestEngineIntegration_RampUpDownWithDummySender(t *testing.T) {
	cfg := &config.TestConfig{
		Name: "Ramp",
		Run:  config.RunConfig{Type: config.RunIteration, Iterations: 300},
		Generator: config.GeneratorConfig{
			Type:             string(executor.TypeRampUpDown),
			Threads:          2,
			QueueSize:        4,
			MonitoringPeriod: config.Duration(50 * time.Millisecond),
			Ramp: &config.RampConfig{
				PreThreads:     1,
				PreDuration:    config.Span{Value: 20},
				UpStep:         2,
				UpStepPeriod:   config.Span{Value: 20},
				MainThreads:    5,
				MainDuration:   config.Span{Value: 100},
				DownStep:       2,
				DownStepPeriod: config.Span{Value: 20},
				PostThreads:    1,
			},
		},
		Sender:   config.SenderConfig{Type: "dummy", Delay: config.Duration(time.Millisecond)},
		Messages: []*message.Template{{Payload: "ping"}},
	}

	result, err := runEngine(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(300), result.Metrics.Iterations)
	assert.Equal(t, 5, result.Senders.Size, "pool covers the largest phase")

	var phases []metrics.Phase
	for _, c := range result.Concurrency {
		if len(phases) == 0 || phases[len(phases)-1] != c.Phase {
			phases = append(phases, c.Phase)
		}
	}
	assert.Equal(t, []metrics.Phase{
		metrics.PhasePre,
		metrics.PhaseRampUp,
		metrics.PhaseMain,
		metrics.PhaseRampDown,
		metrics.PhasePost,
	}, phases)
	assert.NotEmpty(t, result.Phases)
}

func TestEngineIntegration_Correlation(t *testing.T) {
	var engineRef atomic.Pointer[Engine]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlator.DefaultHeader)
		w.WriteHeader(http.StatusAccepted)

		go func() {
			addr := engineRef.Load().ReceiverAddr()
			req, err := http.NewRequest(http.MethodPost, "http://"+addr+config.DefaultReceiverPath, strings.NewReader(`{"status":"done"}`))
			if err != nil {
				return
			}
			req.Header.Set(correlator.DefaultHeader, id)
			if resp, err := http.DefaultClient.Do(req); err == nil {
				resp.Body.Close()
			}
		}()
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Run.Iterations = 10
	cfg.Receiver = &config.ReceiverConfig{Address: "127.0.0.1:0"}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	engineRef.Store(engine)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := engine.Run(ctx)
	require.NoError(t, err)

	require.NotNil(t, result.Correlation)
	assert.Equal(t, int64(10), result.Correlation.Registered)
	assert.Equal(t, int64(10), result.Correlation.Matched)
	assert.Zero(t, result.Correlation.Pending)
	assert.Equal(t, int64(10), result.Metrics.Iterations)
}

func TestEngineIntegration_PublishesToLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	cfg := &config.TestConfig{
		Run:       config.RunConfig{Type: config.RunIteration, Iterations: 20},
		Sender:    config.SenderConfig{Type: "dummy"},
		Messages:  []*message.Template{{Payload: "ping"}},
		Reporting: config.ReportingConfig{Log: true, PublishInterval: config.Duration(10 * time.Millisecond)},
	}

	_, err := runEngine(t, cfg, WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)

	published := logs.FilterMessage("results")
	require.Positive(t, published.Len(), "the final snapshot is always published")
	last := published.All()[published.Len()-1]
	assert.Equal(t, int64(20), last.ContextMap()["iterations"])
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
}

func TestEngine_ContextCancel(t *testing.T) {
	cfg := &config.TestConfig{
		Run: config.RunConfig{Type: config.RunTime, Duration: config.Duration(time.Hour)},
		Generator: config.GeneratorConfig{
			MonitoringPeriod: config.Duration(20 * time.Millisecond),
			ShutdownPeriod:   "50ms",
		},
		Sender:   config.SenderConfig{Type: "dummy", Delay: config.Duration(time.Millisecond)},
		Messages: []*message.Template{{Payload: "ping"}},
	}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := engine.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, engine.IsRunning())
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	_, err := NewEngine(&config.TestConfig{
		Run: config.RunConfig{Type: config.RunIteration, Iterations: 10},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "at least one message")
}
