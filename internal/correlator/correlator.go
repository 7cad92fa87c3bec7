// Package correlator matches responses that arrive on a separate channel
// with the requests that caused them.
//
// A sender task registers every request together with a Waiter before
// sending it. When a response arrives, the correlator extracts its
// correlation ids and hands the response to the matching waiters.
package correlator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
)

// ErrNoTemplates is reported by sender tasks that run with a correlator but
// have no message to correlate.
var ErrNoTemplates = errors.New("correlator configured but no message templates to send")

// Waiter receives the response correlated with a request.
type Waiter interface {
	RegisterResponse(resp *message.Message)
}

// Extractor reads correlation ids from messages.
type Extractor interface {
	// RequestID returns the id of an outgoing request. It may modify msg,
	// e.g. to stamp a generated id.
	RequestID(msg *message.Message, attrs message.Attributes) (string, error)

	// ResponseIDs returns the ids a response answers.
	ResponseIDs(resp *message.Message) []string
}

// Stats counts correlation outcomes.
type Stats struct {
	Registered int64 `json:"registered"`
	Matched    int64 `json:"matched"`
	Unknown    int64 `json:"unknown"`
	Pending    int   `json:"pending"`
}

// Correlator keeps the waiters of requests still expecting a response.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Correlator struct {
	extractor Extractor
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	waiters map[string]Waiter

	registered atomic.Int64
	matched    atomic.Int64
	unknown    atomic.Int64
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Correlator) {
		c.logger = logger
	}
}

// New creates a correlator using extractor.
func New(extractor Extractor, options ...Option) *Correlator {
	c := &Correlator{
		extractor: extractor,
		waiters:   make(map[string]Waiter),
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// RegisterRequest stores w under the correlation id of msg. It must be
// called before msg is sent.
func (c *Correlator) RegisterRequest(w Waiter, msg *message.Message, attrs message.Attributes) error {
	if msg == nil {
		return fmt.Errorf("cannot correlate an empty message")
	}
	id, err := c.extractor.RequestID(msg, attrs)
	if err != nil {
		return fmt.Errorf("failed to extract correlation id: %w", err)
	}

	c.mu.Lock()
	_, dup := c.waiters[id]
	c.waiters[id] = w
	c.mu.Unlock()

	if dup {
		c.logger.Warnw("correlation id registered twice", "correlation_id", id)
	}
	c.registered.Add(1)
	return nil
}

// RegisterResponse delivers resp to every waiter it answers.
func (c *Correlator) RegisterResponse(resp *message.Message) {
	for _, id := range c.extractor.ResponseIDs(resp) {
		c.mu.Lock()
		w, ok := c.waiters[id]
		delete(c.waiters, id)
		c.mu.Unlock()

		if !ok {
			c.unknown.Add(1)
			c.logger.Debugw("response for unknown correlation id", "correlation_id", id)
			continue
		}
		c.matched.Add(1)
		w.RegisterResponse(resp)
	}
}

// Forget drops w if it is still registered for msg, e.g. when the send
// failed or the task stopped waiting. A later registration of the same id
// is kept.
func (c *Correlator) Forget(w Waiter, msg *message.Message, attrs message.Attributes) {
	if msg == nil {
		return
	}
	id, err := c.extractor.RequestID(msg, attrs)
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.waiters[id] == w {
		delete(c.waiters, id)
	}
	c.mu.Unlock()
}

// Stats returns the current counters.
func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	pending := len(c.waiters)
	c.mu.Unlock()

	return Stats{
		Registered: c.registered.Load(),
		Matched:    c.matched.Load(),
		Unknown:    c.unknown.Load(),
		Pending:    pending,
	}
}
