package input

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/metrics"
)

var (
	_ Sink   = (*RedisChannel)(nil)
	_ Source = (*RedisChannel)(nil)
)

const channelPrefix = "codr:input:"

// RedisChannel carries input between processes over Redis pub/sub.
type RedisChannel struct {
	client *goredis.Client
	buffer int
	logger *zap.Logger
}

// NewRedisChannel creates an input channel on top of an existing Redis client.
func NewRedisChannel(client *goredis.Client, buffer int, logger *zap.Logger) *RedisChannel {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisChannel{client: client, buffer: buffer, logger: logger}
}

// Channel returns the pub/sub channel name of a job.
func Channel(jobID uuid.UUID) string {
	return channelPrefix + jobID.String()
}

func (c *RedisChannel) Send(ctx context.Context, jobID uuid.UUID, data []byte) (bool, error) {
	receivers, err := c.client.Publish(ctx, Channel(jobID), data).Result()
	if err != nil {
		return false, fmt.Errorf("input: publish: %w", err)
	}
	if receivers > 0 {
		metrics.InputBytes.Add(float64(len(data)))
	}
	return receivers > 0, nil
}

// Subscribe returns once the Redis subscription is confirmed.
func (c *RedisChannel) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan []byte, error) {
	ps := c.client.Subscribe(ctx, Channel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("input: subscribe: %w", err)
	}

	out := make(chan []byte, c.buffer)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
