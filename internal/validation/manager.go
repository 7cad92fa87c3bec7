package validation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
)

// DefaultQueueSize is the capacity of the validation queue.
const DefaultQueueSize = 10000

// Stats summarizes validation results.
type Stats struct {
	Passed  int64 `json:"passed"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
}

// Manager validates received messages in the background.
//
// # Thread Safety
//
// Submit is safe for concurrent use and never blocks. When the queue is
// full or already stopped the message is skipped.
type Manager struct {
	validators map[string]Validator
	order      []string
	queueSize  int
	logger     *zap.SugaredLogger

	queueMu  sync.RWMutex
	closed   bool
	queue    chan *message.Received
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
	warnOnce sync.Once

	passed  atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty manager.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		validators: make(map[string]Validator),
		queueSize:  DefaultQueueSize,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = logging.OrDefault(m.logger)
	m.queue = make(chan *message.Received, m.queueSize)
	return m
}

// Register adds a validator under id.
func (m *Manager) Register(id string, v Validator) error {
	if id == "" {
		return fmt.Errorf("validator id is required")
	}
	if _, ok := m.validators[id]; ok {
		return fmt.Errorf("duplicate validator id: %s", id)
	}
	m.validators[id] = v
	m.order = append(m.order, id)
	return nil
}

// Enabled reports whether any validator is registered.
func (m *Manager) Enabled() bool {
	return len(m.validators) > 0
}

// Start starts the validation worker. It stops when ctx is cancelled or
// Stop is called.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || !m.started.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go m.worker(ctx)
}

// Submit enqueues a received message for validation.
func (m *Manager) Submit(r *message.Received) {
	if r == nil || !m.Enabled() {
		return
	}

	m.queueMu.RLock()
	defer m.queueMu.RUnlock()
	if m.closed {
		// Tasks left over from a forced shutdown.
		m.skipped.Add(1)
		return
	}
	select {
	case m.queue <- r:
	default:
		m.skipped.Add(1)
		m.warnOnce.Do(func() {
			m.logger.Warnw("validation queue full, skipping responses", "queue_size", m.queueSize)
		})
	}
}

// Stop closes the queue and waits until every queued message is validated.
// Messages submitted after Stop are skipped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.queueMu.Lock()
		m.closed = true
		close(m.queue)
		m.queueMu.Unlock()

		if !m.started.Load() {
			for range m.queue {
				m.skipped.Add(1)
			}
			return
		}
		m.wg.Wait()
	})
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Passed:  m.passed.Load(),
		Failed:  m.failed.Load(),
		Skipped: m.skipped.Load(),
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case r, ok := <-m.queue:
			if !ok {
				return
			}
			m.validate(r)
		case <-ctx.Done():
			for range m.queue {
				m.skipped.Add(1)
			}
			return
		}
	}
}

func (m *Manager) validate(r *message.Received) {
	ids := m.order
	if r.Template != nil && len(r.Template.Validators) > 0 {
		ids = r.Template.Validators
	}

	for _, id := range ids {
		v, ok := m.validators[id]
		if !ok {
			m.failed.Add(1)
			m.logger.Warnw("unknown validator", "validator", id)
			return
		}
		if err := v.Validate(r); err != nil {
			m.failed.Add(1)
			m.logger.Debugw("validation failed",
				"validator", id,
				"message_number", r.Attributes.Get(message.AttrMessageNumber),
				"error", err,
			)
			return
		}
	}
	m.passed.Add(1)
}
