// Package engine builds a run from its configuration and executes it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/performance/config"
	"github.com/wesleyorama2/pacer/internal/performance/executor"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/run"
	"github.com/wesleyorama2/pacer/internal/sender"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// Engine is the main orchestrator of a run.
//
// It coordinates:
//   - Building the sender pool, sequences, validators and correlator
//   - Running the generator until the run is over
//   - Serving the response receiver and the Prometheus endpoint
//   - Publishing results and collecting the final statistics
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("scenario.yaml")
//	engine, _ := NewEngine(cfg)
//	result, _ := engine.Run(context.Background())
//	fmt.Printf("Run passed: %v\n", result.Passed)
type Engine struct {
	config *config.TestConfig
	logger *zap.SugaredLogger

	destinations []metrics.Destination
	metricsAddr  string

	mu        sync.RWMutex
	running   bool
	reports   *metrics.ReportManager
	generator *executor.Generator
	receiver  *correlator.Receiver
	cancel    context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDestinations adds result destinations, e.g. a console progress view.
func WithDestinations(destinations ...metrics.Destination) Option {
	return func(e *Engine) {
		e.destinations = append(e.destinations, destinations...)
	}
}

// WithMetricsAddress serves Prometheus metrics on addr, overriding the
// configured address.
func WithMetricsAddress(addr string) Option {
	return func(e *Engine) {
		e.metricsAddr = addr
	}
}

// TestResult contains the complete results of a run.
type TestResult struct {
	// Run metadata
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Generator   executor.Type `json:"generator"`
	Period      string        `json:"period"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	// Metrics is the final snapshot
	Metrics *metrics.Snapshot `json:"metrics"`

	// Phases and Concurrency are the history of the run
	Phases      []metrics.PhaseChange `json:"phases,omitempty"`
	Concurrency []executor.Change     `json:"concurrency,omitempty"`

	// Stats are the generator counters
	Stats executor.Stats `json:"stats"`

	// Validation and Correlation are set when the features are enabled
	Validation  *validation.Stats `json:"validation,omitempty"`
	Correlation *correlator.Stats `json:"correlation,omitempty"`
	Senders     *SenderPoolStats  `json:"senders,omitempty"`

	// Passed is true when the run completed without errors and every
	// validated response passed
	Passed  bool `json:"passed"`
	Aborted bool `json:"aborted,omitempty"`

	// Error describes why the run failed
	Error string `json:"error,omitempty"`
}

// SenderPoolStats describes the sender pool after the run.
type SenderPoolStats struct {
	Size      int   `json:"size"`
	Exhausted int64 `json:"exhausted"`
}

// NewEngine creates an engine. Defaults are applied to cfg before it is
// validated.
func NewEngine(cfg *config.TestConfig, options ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:      cfg,
		metricsAddr: cfg.Reporting.PrometheusAddress,
	}
	for _, option := range options {
		option(e)
	}
	e.logger = logging.OrDefault(e.logger)
	return e, nil
}

// Run executes the run and returns its results. The result is returned
// alongside the error when the run started; a fail-fast abort returns an
// error wrapping executor.ErrAborted.
//
// Cancelling ctx stops the run early.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("engine is already running")
	}
	e.running = true
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	b, err := e.build()
	if err != nil {
		return nil, err
	}
	defer b.close(e.logger)

	e.mu.Lock()
	e.reports = b.reports
	e.generator = b.generator
	e.receiver = b.receiver
	e.mu.Unlock()

	if b.validation != nil {
		b.validation.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if b.receiver != nil {
		g.Go(func() error {
			return b.receiver.Serve(serveCtx)
		})
	}
	if b.metricsServer != nil {
		g.Go(func() error {
			return serveMetrics(serveCtx, b.metricsServer, b.metricsListener, e.logger)
		})
	}
	g.Go(func() error {
		defer stopServing()
		return b.generator.Run(gctx)
	})

	runErr := g.Wait()
	if b.validation != nil {
		b.validation.Stop()
	}
	b.reports.Close()

	result := e.result(b, runErr)
	if runErr != nil {
		e.logger.Errorw("run failed", "error", runErr)
	} else {
		e.logger.Infow("run finished",
			"iterations", result.Metrics.Iterations,
			"failures", result.Metrics.Failures,
			"duration", result.Duration,
		)
	}
	return result, runErr
}

func (e *Engine) result(b *built, runErr error) *TestResult {
	info := b.info
	result := &TestResult{
		Name:        e.config.Name,
		Description: e.config.Description,
		Generator:   b.generator.Type(),
		Period:      info.Period().String(),
		StartTime:   info.StartTime(),
		EndTime:     info.EndTime(),
		Duration:    info.RunTime(),
		Metrics:     b.reports.Snapshot(),
		Phases:      b.reports.Engine().GetPhaseHistory(),
		Concurrency: b.generator.History(),
		Stats:       *b.generator.Stats(),
		Senders: &SenderPoolStats{
			Size:      b.senders.Size(),
			Exhausted: b.senders.Exhausted(),
		},
		Passed: runErr == nil,
	}

	if b.validation != nil {
		stats := b.validation.Stats()
		result.Validation = &stats
		if stats.Failed > 0 {
			result.Passed = false
		}
	}
	if b.correlator != nil {
		stats := b.correlator.Stats()
		result.Correlation = &stats
	}
	if runErr != nil {
		result.Error = runErr.Error()
		result.Aborted = errors.Is(runErr, executor.ErrAborted)
	}
	return result
}

// built holds the collaborators of one run.
type built struct {
	info       *run.Info
	reports    *metrics.ReportManager
	senders    *sender.Manager
	validation *validation.Manager
	correlator *correlator.Correlator
	receiver   *correlator.Receiver
	generator  *executor.Generator

	metricsServer   *http.Server
	metricsListener net.Listener
}

func (b *built) close(logger *zap.SugaredLogger) {
	if b.senders != nil {
		if err := b.senders.Close(); err != nil {
			logger.Warnw("failed to close senders", "error", err)
		}
	}
}

// abandon releases what build acquired when it fails.
func (b *built) abandon(logger *zap.SugaredLogger) {
	b.close(logger)
	if b.metricsListener != nil {
		_ = b.metricsListener.Close()
	}
}

func (e *Engine) build() (*built, error) {
	cfg := e.config
	b := &built{}
	ok := false
	defer func() {
		if !ok {
			b.abandon(e.logger)
		}
	}()

	prof, err := cfg.LoadProfile()
	if err != nil {
		return nil, err
	}
	execCfg, err := cfg.ExecutorConfig()
	if err != nil {
		return nil, err
	}
	execCfg.Profile = prof

	b.info = run.NewInfo(cfg.RunPeriod())

	destinations := append([]metrics.Destination(nil), e.destinations...)
	if cfg.Reporting.Log {
		destinations = append(destinations, metrics.NewLogDestination(e.logger.Named("results")))
	}
	if e.metricsAddr != "" {
		prom := metrics.NewPrometheusDestination()
		ln, err := net.Listen("tcp", e.metricsAddr)
		if err != nil {
			return nil, fmt.Errorf("metrics endpoint failed to listen on %s: %w", e.metricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		b.metricsListener = ln
		b.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		destinations = append(destinations, prom)
	}

	reportOptions := []metrics.ReportOption{
		metrics.WithDestinations(destinations...),
		metrics.WithPublishInterval(time.Duration(cfg.Reporting.PublishInterval)),
		metrics.WithReportLogger(e.logger),
	}
	if w := cfg.WarmUp(); w != nil {
		reportOptions = append(reportOptions, metrics.WithWarmUp(*w))
	}
	b.reports = metrics.NewReportManager(b.info, reportOptions...)

	factory, err := sender.NewFactory(cfg.SenderConfig())
	if err != nil {
		return nil, err
	}
	b.senders = sender.NewManager(factory, cfg.SenderPoolSize(prof),
		sender.WithAcquireTimeout(time.Duration(cfg.Sender.Pool.AcquireTimeout)),
		sender.WithManagerLogger(e.logger),
	)
	if err := b.senders.Init(); err != nil {
		b.senders = nil
		return nil, err
	}

	sequences, err := cfg.BuildSequences()
	if err != nil {
		return nil, err
	}

	if b.validation, err = cfg.BuildValidation(e.logger); err != nil {
		return nil, err
	}
	if b.correlator, err = cfg.BuildCorrelator(e.logger); err != nil {
		return nil, err
	}
	for _, t := range cfg.Messages {
		t.Compile()
	}

	deps := executor.Dependencies{
		Info:      b.info,
		Reports:   b.reports,
		Senders:   b.senders,
		Sequences: sequences,
		Templates: cfg.Messages,
		Logger:    e.logger,
	}
	// Typed nil pointers must not end up in the interfaces.
	if b.validation != nil {
		deps.Validation = b.validation
	}
	if b.correlator != nil {
		deps.Correlator = b.correlator
	}

	if b.generator, err = executor.New(execCfg, deps); err != nil {
		return nil, err
	}

	if b.correlator != nil {
		b.receiver = correlator.NewReceiver(b.correlator, cfg.Receiver.Address, cfg.Receiver.Path, e.logger)
		if err := b.receiver.Listen(); err != nil {
			return nil, err
		}
	}
	ok = true
	return b, nil
}

func serveMetrics(ctx context.Context, server *http.Server, ln net.Listener, logger *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("metrics endpoint listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// GetConfig returns the test configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reports == nil {
		return nil
	}
	return e.reports.Snapshot()
}

// GetStats returns the current generator counters.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.generator == nil {
		return nil
	}
	return e.generator.Stats()
}

// ReceiverAddr returns the bound address of the response receiver, or ""
// when correlation is off or the run has not started.
func (e *Engine) ReceiverAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.receiver == nil {
		return ""
	}
	return e.receiver.Addr()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop cancels a running run.
func (e *Engine) Stop() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cancel != nil {
		e.cancel()
	}
}
