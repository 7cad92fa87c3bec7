// Package sender holds the adapters that deliver messages to the system
// under test and the pool that hands them out to sender tasks.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wesleyorama2/pacer/internal/message"
	"github.com/wesleyorama2/pacer/internal/performance/metrics"
)

// ErrPoolExhausted is returned by Manager.Acquire when no sender became free
// within the acquire timeout.
var ErrPoolExhausted = errors.New("sender pool exhausted")

// Sender delivers messages to the target.
//
// A Sender is used by one task at a time. The task calls PreSend, Send and
// PostSend for every message and measures only Send.
type Sender interface {
	// Init prepares the sender. Called once before the run.
	Init() error

	// Close releases all resources. Called once after the run.
	Close() error

	// PreSend prepares the next send, e.g. resolves the target with the
	// task's attributes.
	PreSend(ctx context.Context, msg *message.Message, attrs message.Attributes) error

	// Send delivers msg and returns the response, which may be nil.
	Send(ctx context.Context, msg *message.Message, mu *metrics.MeasurementUnit) (*message.Message, error)

	// PostSend cleans up after a send.
	PostSend(ctx context.Context, msg *message.Message) error
}

// Type identifies a sender implementation.
type Type string

const (
	// TypeHTTP sends messages as HTTP requests.
	TypeHTTP Type = "http"

	// TypeDummy echoes messages without any I/O.
	TypeDummy Type = "dummy"
)

// Config describes how to build senders.
type Config struct {
	Type   Type
	Target string

	// Method is the HTTP method (default POST, GET for empty payloads).
	Method string

	// Headers are added to every request.
	Headers map[string]string

	// ExpectedStatus lists accepted HTTP status codes. Empty accepts 2xx.
	ExpectedStatus []int

	// Timeout bounds a single send.
	Timeout time.Duration

	// Delay is the dummy sender's simulated service time.
	Delay time.Duration

	// FailEvery makes the dummy sender fail every n-th send.
	FailEvery int64

	// HTTPClient tunes the shared HTTP transport.
	HTTPClient HTTPClientConfig
}

// Factory builds a new, uninitialized sender.
type Factory func() (Sender, error)

// NewFactory returns a factory for the configured sender type.
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Type {
	case TypeHTTP:
		if cfg.Target == "" {
			return nil, fmt.Errorf("sender %q: target is required", cfg.Type)
		}
		client := NewHTTPClient(cfg.HTTPClient.withDefaults(cfg.Timeout))
		return func() (Sender, error) {
			return NewHTTP(cfg, client), nil
		}, nil
	case TypeDummy, "":
		return func() (Sender, error) {
			return NewDummy(cfg.Delay, cfg.FailEvery), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown sender type: %s (supported: %v)", cfg.Type, SupportedTypes())
	}
}

// SupportedTypes returns the known sender types.
func SupportedTypes() []Type {
	return []Type{TypeDummy, TypeHTTP}
}
