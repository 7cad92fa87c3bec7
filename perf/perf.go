package perf

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/engine"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// Scenario types.
type (
	Config          = config.TestConfig
	RunConfig       = config.RunConfig
	GeneratorConfig = config.GeneratorConfig
	RampConfig      = config.RampConfig
	ProfileConfig   = config.ProfileConfig
	SenderConfig    = config.SenderConfig
	SequenceConfig  = config.SequenceConfig
	Message         = message.Template
)

// Result types.
type (
	Result      = engine.TestResult
	Snapshot    = metrics.Snapshot
	Destination = metrics.Destination
)

// Run period types.
const (
	RunTime      = config.RunTime
	RunIteration = config.RunIteration
)

// LoadConfig reads a YAML or JSON scenario file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfig(path)
}

// Option configures a Runner.
type Option = engine.Option

// WithLogger sets the logger of the run.
func WithLogger(logger *zap.SugaredLogger) Option {
	return engine.WithLogger(logger)
}

// WithDestinations adds destinations that receive live snapshots.
func WithDestinations(destinations ...Destination) Option {
	return engine.WithDestinations(destinations...)
}

// WithMetricsAddress serves Prometheus metrics on addr during the run.
func WithMetricsAddress(addr string) Option {
	return engine.WithMetricsAddress(addr)
}

// Runner runs one scenario.
//
// For programmatic test execution, create a Runner and call Run:
//
//	cfg, _ := perf.LoadConfig("scenario.yaml")
//	runner := perf.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
type Runner struct {
	config  *Config
	options []Option

	mu     sync.Mutex
	engine *engine.Engine
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *Config, options ...Option) *Runner {
	return &Runner{
		config:  cfg,
		options: options,
	}
}

// Run validates the scenario, runs it to completion and returns the result.
// An invalid scenario returns an error and no result. A run that fails or
// is aborted returns both.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	eng, err := engine.NewEngine(r.config, r.options...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.engine = eng
	r.mu.Unlock()

	return eng.Run(ctx)
}

// GetMetrics returns the current metrics snapshot, or nil before Run.
// Can be called during test execution to get real-time metrics.
func (r *Runner) GetMetrics() *Snapshot {
	r.mu.Lock()
	eng := r.engine
	r.mu.Unlock()

	if eng == nil {
		return nil
	}
	return eng.GetMetrics()
}

// Stop ends a run in progress.
func (r *Runner) Stop() {
	r.mu.Lock()
	eng := r.engine
	r.mu.Unlock()

	if eng != nil {
		eng.Stop()
	}
}

// RunTest runs cfg with the default options.
func RunTest(ctx context.Context, cfg *Config) (*Result, error) {
	return NewRunner(cfg).Run(ctx)
}
