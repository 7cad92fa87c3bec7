// Package validation checks the responses received by sender tasks.
//
// Validation runs asynchronously: tasks submit received messages to the
// Manager without blocking, and a worker goroutine applies the validators
// registered for each message template.
package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/pkg/jsonpath"
	"github.com/wesleyorama2/pacer/pkg/jsonschema"
)

// ErrNoResponse is reported for messages that produced no response.
var ErrNoResponse = errors.New("no response to validate")

// Validator checks one received message.
type Validator interface {
	Validate(r *message.Received) error
}

// Type identifies a validator implementation.
type Type string

const (
	TypeRegExp     Type = "regexp"
	TypeJSONPath   Type = "jsonpath"
	TypeJSONSchema Type = "jsonschema"
)

// Spec describes a validator to build.
type Spec struct {
	ID   string `yaml:"id" json:"id"`
	Type Type   `yaml:"type" json:"type"`

	// Pattern is the regular expression of a regexp validator.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Path and Expected configure a jsonpath validator. An empty Expected
	// only requires the path to exist.
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`

	// Schema is the JSON Schema document of a jsonschema validator.
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// New builds the validator described by spec.
func New(spec Spec) (Validator, error) {
	switch spec.Type {
	case TypeRegExp:
		return NewRegExp(spec.Pattern)
	case TypeJSONPath:
		return NewJSONPath(spec.Path, spec.Expected)
	case TypeJSONSchema:
		return NewJSONSchema(spec.Schema)
	default:
		return nil, fmt.Errorf("unknown validator type: %q", spec.Type)
	}
}

func responsePayload(r *message.Received) (string, error) {
	if r == nil || r.Response == nil {
		return "", ErrNoResponse
	}
	return r.Response.Payload, nil
}

// RegExp requires the response payload to match a regular expression.
type RegExp struct {
	re *regexp.Regexp
}

// NewRegExp compiles pattern.
func NewRegExp(pattern string) (*RegExp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regexp validator: pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp validator: %w", err)
	}
	return &RegExp{re: re}, nil
}

// Validate implements Validator.
func (v *RegExp) Validate(r *message.Received) error {
	payload, err := responsePayload(r)
	if err != nil {
		return err
	}
	if !v.re.MatchString(payload) {
		return fmt.Errorf("response does not match %q", v.re.String())
	}
	return nil
}

// JSONPath requires a JSONPath expression to exist in the response payload,
// optionally with an expected value.
type JSONPath struct {
	path     *jsonpath.Path
	expected string
}

// NewJSONPath compiles expr.
func NewJSONPath(expr, expected string) (*JSONPath, error) {
	p, err := jsonpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("jsonpath validator: %w", err)
	}
	return &JSONPath{path: p, expected: expected}, nil
}

// Validate implements Validator.
func (v *JSONPath) Validate(r *message.Received) error {
	payload, err := responsePayload(r)
	if err != nil {
		return err
	}
	value, ok := v.path.Lookup(payload)
	if !ok {
		return fmt.Errorf("path not found: %s", v.path)
	}
	if v.expected != "" && value != v.expected {
		return fmt.Errorf("%s = %q, want %q", v.path, value, v.expected)
	}
	return nil
}

// JSONSchema requires the response payload to satisfy a JSON Schema.
type JSONSchema struct {
	schema *jsonschema.Schema
}

// NewJSONSchema compiles the schema document.
func NewJSONSchema(schema string) (*JSONSchema, error) {
	s, err := jsonschema.Compile(schema)
	if err != nil {
		return nil, fmt.Errorf("jsonschema validator: %w", err)
	}
	return &JSONSchema{schema: s}, nil
}

// Validate implements Validator.
func (v *JSONSchema) Validate(r *message.Received) error {
	payload, err := responsePayload(r)
	if err != nil {
		return err
	}
	return v.schema.Validate(payload)
}
