package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/validation"
)

func minimalConfig() *TestConfig {
	cfg := &TestConfig{
		Name:     "Test",
		Run:      RunConfig{Type: RunIteration, Iterations: 100},
		Messages: []*message.Template{{Payload: "hello"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_MinimalValid(t *testing.T) {
	if err := minimalConfig().Validate(); err != nil {
		t.Errorf("Validate() returned error for valid config: %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*TestConfig)
		errMsg string
	}{
		{
			name:   "no messages",
			modify: func(c *TestConfig) { c.Messages = nil },
			errMsg: "at least one message",
		},
		{
			name:   "time run without duration",
			modify: func(c *TestConfig) { c.Run = RunConfig{Type: RunTime} },
			errMsg: "run.duration",
		},
		{
			name:   "unknown run type",
			modify: func(c *TestConfig) { c.Run.Type = "forever" },
			errMsg: "unknown run type",
		},
		{
			name:   "unknown generator",
			modify: func(c *TestConfig) { c.Generator.Type = "burst" },
			errMsg: "unknown generator type",
		},
		{
			name:   "constant speed without speed",
			modify: func(c *TestConfig) { c.Generator.Type = "constant-speed" },
			errMsg: "speed must be > 0",
		},
		{
			name:   "ramp without ramp section",
			modify: func(c *TestConfig) { c.Generator.Type = "ramp-up-down" },
			errMsg: "ramp configuration is required",
		},
		{
			name: "ramp duration in an iteration run",
			modify: func(c *TestConfig) {
				c.Generator.Type = "ramp-up-down"
				c.Generator.Ramp = &RampConfig{
					PreDuration:    Span{Value: 1000, IsDuration: true},
					UpStep:         1,
					UpStepPeriod:   Span{Value: 10},
					DownStep:       1,
					DownStepPeriod: Span{Value: 10},
				}
			},
			errMsg: "generator.ramp.preDuration",
		},
		{
			name: "ramp with zero step",
			modify: func(c *TestConfig) {
				c.Generator.Type = "ramp-up-down"
				c.Generator.Ramp = &RampConfig{
					UpStepPeriod:   Span{Value: 10},
					DownStep:       1,
					DownStepPeriod: Span{Value: 10},
				}
			},
			errMsg: "upStep",
		},
		{
			name:   "profile without entries",
			modify: func(c *TestConfig) { c.Generator.Type = "custom-profile" },
			errMsg: "generator.profile",
		},
		{
			name:   "bad shutdown period",
			modify: func(c *TestConfig) { c.Generator.ShutdownPeriod = "eventually" },
			errMsg: "generator.shutdownPeriod",
		},
		{
			name: "http without target",
			modify: func(c *TestConfig) {
				c.Sender.Type = "http"
			},
			errMsg: "target is required",
		},
		{
			name: "http with bad target",
			modify: func(c *TestConfig) {
				c.Sender.Type = "http"
				c.Sender.Target = "localhost"
			},
			errMsg: "invalid URL",
		},
		{
			name:   "unknown sender",
			modify: func(c *TestConfig) { c.Sender.Type = "carrier-pigeon" },
			errMsg: "unknown sender type",
		},
		{
			name: "duplicate sequence",
			modify: func(c *TestConfig) {
				c.Sequences = []SequenceConfig{{Name: "id", Type: "number"}, {Name: "id", Type: "uuid"}}
			},
			errMsg: "duplicate sequence",
		},
		{
			name: "unknown sequence type",
			modify: func(c *TestConfig) {
				c.Sequences = []SequenceConfig{{Name: "id", Type: "fibonacci"}}
			},
			errMsg: "unknown sequence type",
		},
		{
			name: "bad regexp",
			modify: func(c *TestConfig) {
				c.Validation = &ValidationConfig{Validators: []validation.Spec{
					{ID: "v", Type: validation.TypeRegExp, Pattern: "("},
				}}
			},
			errMsg: "validation.validators[0]",
		},
		{
			name: "unknown validator reference",
			modify: func(c *TestConfig) {
				c.Messages[0].Validators = []string{"missing"}
			},
			errMsg: "unknown validator",
		},
		{
			name: "correlator without receiver",
			modify: func(c *TestConfig) {
				c.Correlator = &CorrelatorConfig{Type: "header"}
			},
			errMsg: "receiver.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should return error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Error should contain %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := minimalConfig()
	cfg.Messages = nil
	cfg.Sender.Type = "unknown"
	cfg.Run.Iterations = 0

	err := cfg.Validate()
	var errs *ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Validate() error type = %T, want *ValidationErrors", err)
	}
	if len(errs.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs.Errors), err)
	}
	if !strings.HasPrefix(err.Error(), "3 validation errors:") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidationError_Format(t *testing.T) {
	err := &ValidationError{Field: "run.type", Message: "bad"}
	if got, want := err.Error(), "validation error on field 'run.type': bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = &ValidationError{Message: "bad"}
	if got, want := err.Error(), "validation error: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
