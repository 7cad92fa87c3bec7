// Package message holds the messages sent by sender tasks and the templates
// they are built from.
package message

import (
	"maps"
	"strings"
	"time"
)

const (
	// AttrMessageNumber is the attribute carrying the global message number.
	AttrMessageNumber = "message.number"

	// HeaderMessageNumber is set on every sent message.
	HeaderMessageNumber = "X-Message-Number"
)

// Attributes are the substitution values captured once per sender task.
type Attributes map[string]string

// Get returns the value of name or an empty string.
func (a Attributes) Get(name string) string {
	return a[name]
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

// Message is a request or a response payload with its metadata.
type Message struct {
	Payload    string            `json:"payload" yaml:"payload"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// New creates a message with the given payload.
func New(payload string) *Message {
	return &Message{
		Payload:    payload,
		Headers:    make(map[string]string),
		Properties: make(map[string]string),
	}
}

// Clone returns a deep copy of m. Cloning nil returns nil.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{
		Payload:    m.Payload,
		Headers:    maps.Clone(m.Headers),
		Properties: maps.Clone(m.Properties),
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	if c.Properties == nil {
		c.Properties = make(map[string]string)
	}
	return c
}

// SetHeader sets a header, allocating the map if needed.
func (m *Message) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[name] = value
}

// Header returns a header value. Names are matched case-insensitively when
// there is no exact match.
func (m *Message) Header(name string) string {
	if m == nil {
		return ""
	}
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Size returns the payload size in bytes. A nil message has size zero.
func (m *Message) Size() int64 {
	if m == nil {
		return 0
	}
	return int64(len(m.Payload))
}

// Received pairs a sent message with the response it produced. It is the
// input of response validation.
type Received struct {
	Template   *Template
	Sent       *Message
	Response   *Message
	Attributes Attributes
	SentAt     time.Time
	Err        error
}
