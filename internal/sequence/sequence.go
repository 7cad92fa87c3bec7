// Package sequence generates the per-task substitution values used to fill
// message templates.
package sequence

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/pacer/internal/message"
)

// Sequence produces a new value on every call.
type Sequence interface {
	Next() string
}

// Number counts from Start in increments of Step.
type Number struct {
	step    int64
	current atomic.Int64
}

// NewNumber creates a number sequence. A zero step means one.
func NewNumber(start, step int64) *Number {
	if step == 0 {
		step = 1
	}
	n := &Number{step: step}
	n.current.Store(start - step)
	return n
}

// Next returns the next number.
func (n *Number) Next() string {
	return strconv.FormatInt(n.current.Add(n.step), 10)
}

// Timestamp yields the current time in unix milliseconds.
type Timestamp struct {
	now func() time.Time
}

// NewTimestamp creates a timestamp sequence.
func NewTimestamp() *Timestamp {
	return &Timestamp{now: time.Now}
}

// Next returns the current time in milliseconds.
func (t *Timestamp) Next() string {
	return strconv.FormatInt(t.now().UnixMilli(), 10)
}

// UUID yields random version 4 UUIDs.
type UUID struct{}

// Next returns a new UUID.
func (UUID) Next() string {
	return uuid.NewString()
}

// Constant always yields the same value.
type Constant string

// Next returns the constant.
func (c Constant) Next() string {
	return string(c)
}

// Manager takes consistent snapshots of all registered sequences.
//
// Every snapshot also carries message.AttrMessageNumber, a global counter
// starting at zero.
type Manager struct {
	mu        sync.RWMutex
	sequences map[string]Sequence
	names     []string

	messageNumber atomic.Int64
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sequences: make(map[string]Sequence)}
}

// Add registers seq under name.
func (m *Manager) Add(name string, seq Sequence) error {
	if name == "" {
		return fmt.Errorf("sequence name is required")
	}
	if name == message.AttrMessageNumber {
		return fmt.Errorf("sequence name %q is reserved", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sequences[name]; exists {
		return fmt.Errorf("sequence %q already registered", name)
	}
	m.sequences[name] = seq
	m.names = append(m.names, name)
	sort.Strings(m.names)
	return nil
}

// Names returns the registered sequence names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}

// Snapshot advances every sequence once and returns the values.
func (m *Manager) Snapshot() message.Attributes {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attrs := make(message.Attributes, len(m.sequences)+1)
	attrs[message.AttrMessageNumber] = strconv.FormatInt(m.messageNumber.Add(1)-1, 10)
	for _, name := range m.names {
		attrs[name] = m.sequences[name].Next()
	}
	return attrs
}

// New builds a sequence from its type name.
//
// Supported types: "number", "timestamp", "uuid", "constant".
func New(kind string, start, step int64, value string) (Sequence, error) {
	switch kind {
	case "number", "":
		return NewNumber(start, step), nil
	case "timestamp":
		return NewTimestamp(), nil
	case "uuid":
		return UUID{}, nil
	case "constant":
		return Constant(value), nil
	default:
		return nil, fmt.Errorf("unknown sequence type: %s", kind)
	}
}
