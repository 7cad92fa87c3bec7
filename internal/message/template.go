package message

import (
	"strings"
)

// Template describes a message that sender tasks send, possibly several
// times in a row.
//
// Payload, header values and property values may contain {{name}}
// placeholders that are replaced with the task's attribute snapshot.
// Unknown placeholders are kept verbatim.
type Template struct {
	// Name identifies the template in logs and validation results.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Payload    string            `json:"payload,omitempty" yaml:"payload,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Multiplicity is how many times the message is sent per task.
	Multiplicity int `json:"multiplicity,omitempty" yaml:"multiplicity,omitempty"`

	// Validators lists the validator ids applied to responses of this
	// template. Empty means all registered validators.
	Validators []string `json:"validators,omitempty" yaml:"validators,omitempty"`

	static *Message
}

// Compile precomputes the message for templates without placeholders.
// Filter works without it, just slower.
func (t *Template) Compile() {
	if !t.hasPlaceholders() {
		t.static = &Message{
			Payload:    t.Payload,
			Headers:    t.Headers,
			Properties: t.Properties,
		}
	}
}

// Repeats returns the effective multiplicity, at least one.
func (t *Template) Repeats() int {
	if t.Multiplicity < 1 {
		return 1
	}
	return t.Multiplicity
}

// Filter returns a new message with placeholders substituted from attrs.
func (t *Template) Filter(attrs Attributes) *Message {
	if t.static != nil {
		return t.static.Clone()
	}

	m := New(Resolve(t.Payload, attrs))
	for k, v := range t.Headers {
		m.Headers[k] = Resolve(v, attrs)
	}
	for k, v := range t.Properties {
		m.Properties[k] = Resolve(v, attrs)
	}
	return m
}

func (t *Template) hasPlaceholders() bool {
	if strings.Contains(t.Payload, "{{") {
		return true
	}
	for _, v := range t.Headers {
		if strings.Contains(v, "{{") {
			return true
		}
	}
	for _, v := range t.Properties {
		if strings.Contains(v, "{{") {
			return true
		}
	}
	return false
}

// Resolve replaces {{name}} placeholders with values from attrs.
func Resolve(input string, attrs Attributes) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	result := input
	for key, value := range attrs {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
