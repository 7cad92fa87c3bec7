package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultThreads          = 1
	DefaultQueueSize        = 1000
	DefaultMonitoringPeriod = time.Second
	DefaultShutdownPeriod   = time.Second
	DefaultAcquireTimeout   = 5 * time.Second
	DefaultPublishInterval  = time.Second
	DefaultReceiverPath     = "/responses"
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Relative file references (e.g. a CSV profile) resolve against the
// directory of path.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	config.baseDir = filepath.Dir(path)
	return config, nil
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		// Try YAML by default
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills in zero values.
func (c *TestConfig) ApplyDefaults() {
	if c.Run.Type == "" {
		if c.Run.Iterations > 0 && c.Run.Duration == 0 {
			c.Run.Type = RunIteration
		} else {
			c.Run.Type = RunTime
		}
	}

	g := &c.Generator
	if g.Type == "" {
		g.Type = "fixed"
	}
	if g.Threads == 0 {
		g.Threads = DefaultThreads
	}
	if g.QueueSize == 0 {
		g.QueueSize = DefaultQueueSize
	}
	if g.MonitoringPeriod == 0 {
		g.MonitoringPeriod = Duration(DefaultMonitoringPeriod)
	}
	if g.ShutdownPeriod == "" {
		g.ShutdownPeriod = DefaultShutdownPeriod.String()
	}

	if c.Sender.Type == "" {
		c.Sender.Type = "dummy"
	}
	if c.Sender.Pool.AcquireTimeout == 0 {
		c.Sender.Pool.AcquireTimeout = Duration(DefaultAcquireTimeout)
	}

	if c.Reporting.PublishInterval == 0 {
		c.Reporting.PublishInterval = Duration(DefaultPublishInterval)
	}

	if c.Receiver != nil && c.Receiver.Path == "" {
		c.Receiver.Path = DefaultReceiverPath
	}
	if c.Receiver != nil && c.Correlator == nil {
		c.Correlator = &CorrelatorConfig{}
	}
	if c.Correlator != nil && c.Correlator.Type == "" {
		c.Correlator.Type = "header"
	}

	for i := range c.Sequences {
		if c.Sequences[i].Type == "" {
			c.Sequences[i].Type = "number"
		}
	}
}

// ShutdownPeriodValue returns the configured shutdown period and whether it is
// auto-tuned.
func (g *GeneratorConfig) ShutdownPeriodValue() (time.Duration, bool, error) {
	if strings.EqualFold(g.ShutdownPeriod, ShutdownAuto) {
		return 0, true, nil
	}
	d, err := ParseDurationString(g.ShutdownPeriod)
	return d, false, err
}
