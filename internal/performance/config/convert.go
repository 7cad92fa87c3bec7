package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/performance/executor"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
	"github.com/wesleyorama2/pacer/internal/performance/profile"
	"github.com/wesleyorama2/pacer/internal/performance/run"
	"github.com/wesleyorama2/pacer/internal/sender"
	"github.com/wesleyorama2/pacer/internal/sequence"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// RunPeriod converts the run section.
func (c *TestConfig) RunPeriod() run.Period {
	if c.Run.Type == RunIteration {
		return run.IterationPeriod(c.Run.Iterations)
	}
	return run.TimePeriod(time.Duration(c.Run.Duration))
}

// ExecutorConfig converts the generator section. A custom profile is loaded
// by LoadProfile and is not part of the result.
func (c *TestConfig) ExecutorConfig() (executor.Config, error) {
	g := c.Generator
	shutdown, auto, err := g.ShutdownPeriodValue()
	if err != nil {
		return executor.Config{}, fmt.Errorf("generator.shutdownPeriod: %w", err)
	}

	cfg := executor.Config{
		Type:               executor.Type(g.Type),
		Threads:            g.Threads,
		QueueSize:          g.QueueSize,
		MonitoringPeriod:   time.Duration(g.MonitoringPeriod),
		ShutdownPeriod:     shutdown,
		AutoShutdownPeriod: auto,
		FailFast:           g.FailFast,
		Speed:              g.Speed,
	}

	if r := g.Ramp; r != nil {
		var spans [4]int64
		for i, s := range []Span{r.PreDuration, r.UpStepPeriod, r.MainDuration, r.DownStepPeriod} {
			if spans[i], err = s.Progress(c.Run.Type); err != nil {
				return executor.Config{}, fmt.Errorf("generator.ramp: %w", err)
			}
		}
		cfg.Ramp = &executor.Ramp{
			PreThreads:     r.PreThreads,
			PreDuration:    spans[0],
			UpStep:         r.UpStep,
			UpStepPeriod:   spans[1],
			MainThreads:    r.MainThreads,
			MainDuration:   spans[2],
			DownStep:       r.DownStep,
			DownStepPeriod: spans[3],
			PostThreads:    r.PostThreads,
		}
	}

	return cfg, nil
}

// LoadProfile builds the custom profile from a CSV file or inline entries.
// It returns nil when no profile is configured.
func (c *TestConfig) LoadProfile() (*profile.Profile, error) {
	p := c.Generator.Profile
	if p == nil {
		return nil, nil
	}
	autoReplay := p.AutoReplay == nil || *p.AutoReplay

	if p.File != "" {
		path := p.File
		if !filepath.IsAbs(path) && c.baseDir != "" {
			path = filepath.Join(c.baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open profile: %w", err)
		}
		defer f.Close()

		prof, err := profile.LoadCSV(f, autoReplay)
		if err != nil {
			return nil, fmt.Errorf("failed to parse profile %s: %w", p.File, err)
		}
		return prof, nil
	}

	entries := make([]profile.Entry, 0, len(p.Entries))
	for i, e := range p.Entries {
		at, err := e.At.Progress(c.Run.Type)
		if err != nil {
			return nil, fmt.Errorf("profile entry %d: %w", i, err)
		}
		entries = append(entries, profile.Entry{At: at, Threads: e.Threads, Speed: e.Speed})
	}
	return profile.FromEntries(entries, autoReplay)
}

// MaxThreads returns the highest worker count the generator can reach.
func (c *TestConfig) MaxThreads(prof *profile.Profile) int {
	g := c.Generator
	most := max(g.Threads, 1)
	if r := g.Ramp; r != nil {
		most = max(most, r.PreThreads, r.MainThreads, r.PostThreads)
	}
	if prof != nil {
		most = max(most, prof.MaxThreads())
	}
	return most
}

// SenderConfig converts the sender section.
func (c *TestConfig) SenderConfig() sender.Config {
	s := c.Sender
	cfg := sender.Config{
		Type:           sender.Type(s.Type),
		Target:         s.Target,
		Method:         s.Method,
		Headers:        s.Headers,
		ExpectedStatus: s.ExpectedStatus,
		Timeout:        time.Duration(s.Timeout),
		Delay:          time.Duration(s.Delay),
		FailEvery:      s.FailEvery,
	}
	if s.HTTP != nil {
		cfg.HTTPClient = *s.HTTP
	}
	return cfg
}

// SenderPoolSize returns the sender pool size, at least the largest worker
// count so no worker waits for a sender.
func (c *TestConfig) SenderPoolSize(prof *profile.Profile) int {
	return max(c.Sender.Pool.Size, c.MaxThreads(prof))
}

// BuildSequences creates the sequence manager.
func (c *TestConfig) BuildSequences() (*sequence.Manager, error) {
	m := sequence.NewManager()
	for _, s := range c.Sequences {
		seq, err := sequence.New(s.Type, s.Start, s.Step, s.Value)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", s.Name, err)
		}
		if err := m.Add(s.Name, seq); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BuildValidation creates the validation manager with every validator
// registered. It returns nil when validation is disabled.
func (c *TestConfig) BuildValidation(logger *zap.SugaredLogger) (*validation.Manager, error) {
	if !c.Validation.IsEnabled() {
		return nil, nil
	}

	options := []validation.ManagerOption{validation.WithLogger(logger)}
	if c.Validation.QueueSize > 0 {
		options = append(options, validation.WithQueueSize(c.Validation.QueueSize))
	}
	m := validation.NewManager(options...)

	for _, spec := range c.Validation.Validators {
		v, err := validation.New(spec)
		if err != nil {
			return nil, fmt.Errorf("validator %s: %w", spec.ID, err)
		}
		if err := m.Register(spec.ID, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BuildCorrelator creates the correlator. It returns nil when correlation
// is not configured.
func (c *TestConfig) BuildCorrelator(logger *zap.SugaredLogger) (*correlator.Correlator, error) {
	cc := c.Correlator
	if cc == nil {
		return nil, nil
	}
	extractor, err := correlator.NewExtractor(correlator.Type(cc.Type), cc.Header, cc.RequestPath, cc.ResponsePath)
	if err != nil {
		return nil, err
	}
	return correlator.New(extractor, correlator.WithLogger(logger)), nil
}

// WarmUp converts the warm-up settings. It returns nil when warm-up is
// disabled.
func (c *TestConfig) WarmUp() *metrics.WarmUp {
	w := c.Reporting.WarmUp
	if w == nil || (w.MinIterations == 0 && w.MinDuration == 0) {
		return nil
	}
	return &metrics.WarmUp{
		MinIterations: w.MinIterations,
		MinDuration:   time.Duration(w.MinDuration),
	}
}
