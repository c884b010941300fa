package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/dispatch"
)

// Ensure Publisher implements dispatch.Publisher.
var _ dispatch.Publisher = (*Publisher)(nil)

// Publisher is a mock dispatch publisher for testing.
type Publisher struct {
	mu        sync.Mutex
	Published []uuid.UUID
	PublishFn func(ctx context.Context, jobID uuid.UUID) error
}

// NewPublisher creates a new mock publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (m *Publisher) Publish(ctx context.Context, jobID uuid.UUID) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, jobID)
	}
	m.mu.Lock()
	m.Published = append(m.Published, jobID)
	m.mu.Unlock()
	return nil
}

func (m *Publisher) Close() error {
	return nil
}
