package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
)

var _ Bus = (*RedisBus)(nil)

const channelPrefix = "codr:events:"

// RedisBus carries events between processes over Redis pub/sub, one channel
// per job.
type RedisBus struct {
	publisher

	client *goredis.Client
	buffer int
	logger *zap.Logger
}

// NewRedisBus creates a bus on top of an existing Redis client.
func NewRedisBus(client *goredis.Client, buffer int, logger *zap.Logger) *RedisBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	b := &RedisBus{client: client, buffer: buffer, logger: logger}
	b.publisher = publisher{publish: b.Publish}
	return b
}

// Channel returns the pub/sub channel name of a job.
func Channel(jobID uuid.UUID) string {
	return channelPrefix + jobID.String()
}

// Publish sends ev to the job's channel.
func (b *RedisBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.JobID), payload).Err(); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// Subscribe returns once the Redis subscription is confirmed, so no event
// published after Subscribe returns is missed.
func (b *RedisBus) Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan domain.Event, b.buffer)
	metrics.StreamSubscribers.Inc()

	go func() {
		defer metrics.StreamSubscribers.Dec()
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed event", zap.String("job_id", jobID.String()), zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					b.logger.Warn("evicting slow subscriber", zap.String("job_id", jobID.String()))
					metrics.SubscribersEvicted.Inc()
					return
				}
				if ev.IsTerminal() {
					return
				}
			}
		}
	}()

	return newSubscription(out, cancel), nil
}
