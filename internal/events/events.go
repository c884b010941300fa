// Package events fans execution events out to subscribers of a job.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Publisher emits events for a job. Publishing when nobody is subscribed is
// a no-op.
type Publisher interface {
	PublishOutput(ctx context.Context, jobID uuid.UUID, stream domain.Stream, text string) error
	PublishComplete(ctx context.Context, jobID uuid.UUID, exitCode int, executionTime float64) error
	PublishError(ctx context.Context, jobID uuid.UUID, message string) error
}

// Subscriber attaches live listeners to a job. There is no replay: a
// subscription sees only events published after it was established.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error)
}

// Bus is both ends of an event transport.
type Bus interface {
	Publisher
	Subscriber
}

// Subscription is a live stream of events for one job. Events is closed
// after the terminal event, when the subscriber falls behind and is
// evicted, when the subscribing context ends, or on Close.
type Subscription struct {
	events <-chan domain.Event
	once   sync.Once
	cancel func()
}

func newSubscription(events <-chan domain.Event, cancel func()) *Subscription {
	return &Subscription{events: events, cancel: cancel}
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// publisher derives the typed Publisher methods from a single publish func.
type publisher struct {
	publish func(ctx context.Context, ev domain.Event) error
}

func (p publisher) PublishOutput(ctx context.Context, jobID uuid.UUID, stream domain.Stream, text string) error {
	return p.publish(ctx, domain.OutputEvent(jobID, stream, text))
}

func (p publisher) PublishComplete(ctx context.Context, jobID uuid.UUID, exitCode int, executionTime float64) error {
	return p.publish(ctx, domain.CompleteEvent(jobID, exitCode, executionTime))
}

func (p publisher) PublishError(ctx context.Context, jobID uuid.UUID, message string) error {
	return p.publish(ctx, domain.ErrorEvent(jobID, message))
}
