package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
)

var _ Bus = (*Hub)(nil)

// Hub is an in-process event bus. Each subscriber has its own bounded queue;
// a subscriber whose queue is full is evicted so the publisher never blocks.
type Hub struct {
	publisher

	mu     sync.Mutex
	subs   map[uuid.UUID]map[*hubSub]struct{}
	buffer int
	logger *zap.Logger
}

type hubSub struct {
	ch   chan domain.Event
	stop func() bool
}

// NewHub creates an in-process bus with the given per-subscriber buffer.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h := &Hub{
		subs:   make(map[uuid.UUID]map[*hubSub]struct{}),
		buffer: buffer,
		logger: logger,
	}
	h.publisher = publisher{publish: h.Publish}
	return h
}

// Subscribe registers a listener for jobID until ctx ends or the stream terminates.
func (h *Hub) Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &hubSub{ch: make(chan domain.Event, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*hubSub]struct{})
		h.subs[jobID] = set
	}
	set[s] = struct{}{}
	s.stop = context.AfterFunc(ctx, func() { h.remove(jobID, s) })
	h.mu.Unlock()

	metrics.StreamSubscribers.Inc()
	return newSubscription(s.ch, func() { h.remove(jobID, s) }), nil
}

// Publish delivers ev to every current subscriber of its job.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[ev.JobID]
	for s := range set {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("evicting slow subscriber", zap.String("job_id", ev.JobID.String()))
			metrics.SubscribersEvicted.Inc()
			h.detachLocked(ev.JobID, s)
		}
	}
	if ev.IsTerminal() {
		for s := range h.subs[ev.JobID] {
			h.detachLocked(ev.JobID, s)
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscribers of a job.
func (h *Hub) SubscriberCount(jobID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) remove(jobID uuid.UUID, s *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(jobID, s)
}

// detachLocked removes s and closes its channel. The map entry is the
// ownership token, so a channel is closed exactly once.
func (h *Hub) detachLocked(jobID uuid.UUID, s *hubSub) {
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
	if s.stop != nil {
		s.stop()
	}
	close(s.ch)
	metrics.StreamSubscribers.Dec()
}
