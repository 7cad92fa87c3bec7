package sender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	pool "github.com/jolestar/go-commons-pool"
	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
)

// DefaultAcquireTimeout bounds how long Acquire waits for a free sender.
const DefaultAcquireTimeout = 5 * time.Second

// Manager is a fixed pool of senders.
//
// Senders are pooled objects of a blocking object pool capped at the pool
// size. Init creates all of them up front, so initialization errors show
// before the run starts, and a sender is handed to one task at a time.
//
// # Thread Safety
//
// Acquire and Release are safe for concurrent use.
type Manager struct {
	factory Factory
	size    int
	timeout time.Duration
	logger  *zap.SugaredLogger

	senders *pool.ObjectPool

	closeMu   sync.Mutex
	closeErrs []error

	acquired  atomic.Int64
	exhausted atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAcquireTimeout sets how long Acquire waits.
func WithAcquireTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a pool of size senders built by factory. Senders are
// created by Init.
func NewManager(factory Factory, size int, options ...ManagerOption) *Manager {
	if size < 1 {
		size = 1
	}
	m := &Manager{
		factory: factory,
		size:    size,
		timeout: DefaultAcquireTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = logging.OrDefault(m.logger)

	// No eviction: senders live as long as the run.
	poolConfig := pool.ObjectPoolConfig{
		LIFO:                     true,
		MaxTotal:                 size,
		MaxIdle:                  size,
		MinIdle:                  0,
		BlockWhenExhausted:       true,
		MinEvictableIdleTime:     math.MaxInt64,
		SoftMinEvictableIdleTime: math.MaxInt64,
		TimeBetweenEvictionRuns:  0,
		NumTestsPerEvictionRun:   0,
	}
	m.senders = pool.NewObjectPool(context.Background(), pool.NewPooledObjectFactory(
		m.create,
		m.destroy,
		nil, nil, nil,
	), &poolConfig)
	return m
}

func (m *Manager) create(context.Context) (interface{}, error) {
	s, err := m.factory()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (m *Manager) destroy(_ context.Context, object *pool.PooledObject) error {
	s, ok := object.Object.(Sender)
	if !ok {
		return nil
	}
	if err := s.Close(); err != nil {
		m.closeMu.Lock()
		m.closeErrs = append(m.closeErrs, err)
		m.closeMu.Unlock()
		return err
	}
	return nil
}

// Init builds and initializes all senders. On failure the senders created
// so far are closed.
func (m *Manager) Init() error {
	ctx := context.Background()

	// Holding every sender at once forces the pool to create all of them.
	borrowed := make([]interface{}, 0, m.size)
	var initErr error
	for i := 0; i < m.size; i++ {
		s, err := m.senders.BorrowObject(ctx)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize sender %d: %w", i, err)
			break
		}
		borrowed = append(borrowed, s)
	}
	for _, s := range borrowed {
		_ = m.senders.ReturnObject(ctx, s)
	}

	if initErr != nil {
		_ = m.Close()
		return initErr
	}
	m.logger.Debugw("sender pool initialized", "size", m.size)
	return nil
}

// Size returns the pool size.
func (m *Manager) Size() int {
	return m.size
}

// Acquire takes a free sender, waiting up to the acquire timeout.
func (m *Manager) Acquire(ctx context.Context) (Sender, error) {
	borrowCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	object, err := m.senders.BorrowObject(borrowCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if borrowCtx.Err() != nil {
			m.exhausted.Add(1)
			return nil, fmt.Errorf("%w: no sender free after %s", ErrPoolExhausted, m.timeout)
		}
		return nil, fmt.Errorf("failed to acquire sender: %w", err)
	}

	s, ok := object.(Sender)
	if !ok {
		_ = m.senders.InvalidateObject(ctx, object)
		return nil, fmt.Errorf("pooled object is not a sender: %T", object)
	}
	m.acquired.Add(1)
	return s, nil
}

// Release returns a sender to the pool.
func (m *Manager) Release(s Sender) {
	if s == nil {
		return
	}
	if err := m.senders.ReturnObject(context.Background(), s); err != nil {
		m.logger.Warnw("released sender does not belong to the pool", "error", err)
	}
}

// Available returns the number of free senders.
func (m *Manager) Available() int {
	return m.size - m.senders.GetNumActive()
}

// Exhausted returns how many acquisitions timed out.
func (m *Manager) Exhausted() int64 {
	return m.exhausted.Load()
}

// Close closes all senders.
func (m *Manager) Close() error {
	m.senders.Close(context.Background())

	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	err := errors.Join(m.closeErrs...)
	m.closeErrs = nil
	return err
}
