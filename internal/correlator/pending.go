package correlator

import (
	"context"
	"sync"

	"github.com/wesleyorama2/pacer/internal/message"
)

// Pending is a one-shot slot for a correlated response. The first response
// wins; later ones are dropped.
type Pending struct {
	ch   chan *message.Message
	once sync.Once
}

// NewPending creates an empty slot.
func NewPending() *Pending {
	return &Pending{ch: make(chan *message.Message, 1)}
}

// RegisterResponse implements Waiter.
func (p *Pending) RegisterResponse(resp *message.Message) {
	p.once.Do(func() {
		p.ch <- resp
	})
}

// Done returns a channel that receives the response once.
func (p *Pending) Done() <-chan *message.Message {
	return p.ch
}

// Wait blocks until the response arrives or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*message.Message, error) {
	select {
	case resp := <-p.ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
