// Package input carries stdin bytes from clients to the worker running a job.
package input

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/metrics"
)

// Sink accepts input for a job. Send reports whether any live execution was
// listening; input nobody listens to is dropped.
type Sink interface {
	Send(ctx context.Context, jobID uuid.UUID, data []byte) (bool, error)
}

// Source yields input for a job. The returned channel is closed once ctx
// ends. Nothing is buffered for a subscriber that attaches later.
type Source interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan []byte, error)
}

var (
	_ Sink   = (*Broker)(nil)
	_ Source = (*Broker)(nil)
)

// Broker is an in-process input channel.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*brokerSub]struct{}
	buffer int
}

type brokerSub struct {
	ch       chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// NewBroker creates a broker with the given per-subscriber buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{subs: make(map[uuid.UUID]map[*brokerSub]struct{}), buffer: buffer}
}

func (b *Broker) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &brokerSub{ch: make(chan []byte, b.buffer), done: make(chan struct{})}

	b.mu.Lock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[*brokerSub]struct{})
		b.subs[jobID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.remove(jobID, s) })
	return s.ch, nil
}

// Send blocks until every live subscriber accepted data, a subscriber went
// away, or ctx ends.
func (b *Broker) Send(ctx context.Context, jobID uuid.UUID, data []byte) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := false
	for s := range b.subs[jobID] {
		chunk := append([]byte(nil), data...)
		select {
		case s.ch <- chunk:
			delivered = true
		case <-s.done:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	if delivered {
		metrics.InputBytes.Add(float64(len(data)))
	}
	return delivered, nil
}

// remove signals senders first so none stays blocked on s, then closes the
// channel under the write lock, which excludes every sender.
func (b *Broker) remove(jobID uuid.UUID, s *brokerSub) {
	s.doneOnce.Do(func() { close(s.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[jobID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, jobID)
	}
	close(s.ch)
}
