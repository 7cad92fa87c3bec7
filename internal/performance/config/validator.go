package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/performance/executor"
	"github.com/wesleyorama2/pacer/internal/sender"
	"github.com/wesleyorama2/pacer/internal/sequence"
	"github.com/wesleyorama2/pacer/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration. Call ApplyDefaults
// first.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateRun(&c.Run, errs)
	validateGenerator(c, errs)
	validateSender(&c.Sender, errs)

	if len(c.Messages) == 0 {
		errs.Add("messages", "at least one message is required")
	}
	for i, m := range c.Messages {
		if m == nil {
			errs.Add(fmt.Sprintf("messages[%d]", i), "message must not be empty")
			continue
		}
		if m.Multiplicity < 0 {
			errs.Add(fmt.Sprintf("messages[%d].multiplicity", i), "multiplicity must be >= 0")
		}
	}

	validateSequences(c.Sequences, errs)
	validateValidation(c, errs)
	validateCorrelation(c, errs)

	if c.Reporting.WarmUp != nil && c.Reporting.WarmUp.MinIterations < 0 {
		errs.Add("reporting.warmUp.minIterations", "minIterations must be >= 0")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRun(r *RunConfig, errs *ValidationErrors) {
	switch r.Type {
	case RunTime:
		if r.Duration <= 0 {
			errs.Add("run.duration", "duration must be > 0 for a time bound run")
		}
	case RunIteration:
		if r.Iterations <= 0 {
			errs.Add("run.iterations", "iterations must be > 0 for an iteration bound run")
		}
	default:
		errs.Add("run.type", fmt.Sprintf("unknown run type: %s (supported: %s, %s)", r.Type, RunTime, RunIteration))
	}
}

func validateGenerator(c *TestConfig, errs *ValidationErrors) {
	g := &c.Generator

	if !executor.IsValidGeneratorType(g.Type) {
		errs.Add("generator.type", fmt.Sprintf("unknown generator type: %s (supported: %v)", g.Type, executor.GetSupportedGenerators()))
		return
	}
	if _, _, err := g.ShutdownPeriodValue(); err != nil {
		errs.Add("generator.shutdownPeriod", fmt.Sprintf("must be a duration or %q: %v", ShutdownAuto, err))
	}

	switch executor.Type(g.Type) {
	case executor.TypeRampUpDown:
		if g.Ramp == nil {
			errs.Add("generator.ramp", "ramp configuration is required for ramp-up-down")
			return
		}
		spans := []struct {
			field string
			span  Span
		}{
			{"preDuration", g.Ramp.PreDuration},
			{"upStepPeriod", g.Ramp.UpStepPeriod},
			{"mainDuration", g.Ramp.MainDuration},
			{"downStepPeriod", g.Ramp.DownStepPeriod},
		}
		for _, s := range spans {
			if _, err := s.span.Progress(c.Run.Type); err != nil {
				errs.Add("generator.ramp."+s.field, err.Error())
			}
		}
	case executor.TypeCustomProfile:
		p := g.Profile
		if p == nil || (p.File == "" && len(p.Entries) == 0) {
			errs.Add("generator.profile", "a profile file or entries are required for custom-profile")
			return
		}
		if p.File != "" && len(p.Entries) > 0 {
			errs.Add("generator.profile", "file and entries are mutually exclusive")
		}
		for i, e := range p.Entries {
			if _, err := e.At.Progress(c.Run.Type); err != nil {
				errs.Add(fmt.Sprintf("generator.profile.entries[%d].at", i), err.Error())
			}
		}
	}

	// Remaining rules live with the executor; skip them when the profile
	// has not been loaded yet.
	if g.Type == string(executor.TypeCustomProfile) {
		return
	}
	cfg, err := c.ExecutorConfig()
	if err != nil {
		errs.Add("generator", err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		if ve, ok := err.(*executor.ValidationError); ok {
			errs.Add("generator."+ve.Field, ve.Message)
		} else {
			errs.Add("generator", err.Error())
		}
	}
}

func validateSender(s *SenderConfig, errs *ValidationErrors) {
	switch sender.Type(s.Type) {
	case sender.TypeDummy:
		if s.FailEvery < 0 {
			errs.Add("sender.failEvery", "failEvery must be >= 0")
		}
	case sender.TypeHTTP:
		if s.Target == "" {
			errs.Add("sender.target", "target is required for the http sender")
		} else if !strings.Contains(s.Target, "{{") {
			if u, err := url.Parse(s.Target); err != nil || u.Scheme == "" || u.Host == "" {
				errs.Add("sender.target", fmt.Sprintf("invalid URL: %s", s.Target))
			}
		}
		for _, code := range s.ExpectedStatus {
			if code < 100 || code > 599 {
				errs.Add("sender.expectedStatus", fmt.Sprintf("invalid HTTP status code: %d", code))
			}
		}
	default:
		errs.Add("sender.type", fmt.Sprintf("unknown sender type: %s (supported: %v)", s.Type, sender.SupportedTypes()))
	}

	if s.Pool.Size < 0 {
		errs.Add("sender.pool.size", "size must be >= 0")
	}
}

func validateSequences(seqs []SequenceConfig, errs *ValidationErrors) {
	seen := make(map[string]bool, len(seqs))
	for i, s := range seqs {
		field := fmt.Sprintf("sequences[%d]", i)
		if s.Name == "" {
			errs.Add(field+".name", "name is required")
		} else if seen[s.Name] {
			errs.Add(field+".name", fmt.Sprintf("duplicate sequence: %s", s.Name))
		}
		seen[s.Name] = true

		if _, err := sequence.New(s.Type, s.Start, s.Step, s.Value); err != nil {
			errs.Add(field+".type", err.Error())
		}
	}
}

func validateValidation(c *TestConfig, errs *ValidationErrors) {
	ids := make(map[string]bool)
	if c.Validation != nil {
		for i, spec := range c.Validation.Validators {
			field := fmt.Sprintf("validation.validators[%d]", i)
			if spec.ID == "" {
				errs.Add(field+".id", "id is required")
			} else if ids[spec.ID] {
				errs.Add(field+".id", fmt.Sprintf("duplicate validator: %s", spec.ID))
			}
			ids[spec.ID] = true

			if _, err := validation.New(spec); err != nil {
				errs.Add(field, err.Error())
			}
		}
	}

	for i, m := range c.Messages {
		if m == nil {
			continue
		}
		for _, id := range m.Validators {
			if !ids[id] {
				errs.Add(fmt.Sprintf("messages[%d].validators", i), fmt.Sprintf("unknown validator: %s", id))
			}
		}
	}
}

func validateCorrelation(c *TestConfig, errs *ValidationErrors) {
	if c.Correlator == nil {
		return
	}
	if c.Receiver == nil || c.Receiver.Address == "" {
		errs.Add("receiver.address", "a receiver address is required when correlation is enabled")
	}
	cc := c.Correlator
	if _, err := correlator.NewExtractor(correlator.Type(cc.Type), cc.Header, cc.RequestPath, cc.ResponsePath); err != nil {
		errs.Add("correlator", err.Error())
	}
}
