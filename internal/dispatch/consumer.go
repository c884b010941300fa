package dispatch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
)

const baseConsumerReconnectDelay = 1 * time.Second

// Consumer listens to RabbitMQ and dispatches DispatchMessages (with ack
// callbacks) to a channel.
type Consumer struct {
	url      string
	prefetch int
	conn     *amqp.Connection
	channel  *amqp.Channel
	logger   *zap.Logger
	jobs     chan<- *domain.DispatchMessage

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a consumer. Deliveries are not acked on dispatch: the
// worker pool acks or nacks each message once the job has been handled.
// prefetch bounds unacknowledged deliveries and normally equals the pool size.
func NewConsumer(url string, prefetch int, jobs chan<- *domain.DispatchMessage, logger *zap.Logger) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	c := &Consumer{
		url:      url,
		prefetch: prefetch,
		logger:   logger,
		jobs:     jobs,
		closeCh:  make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start consumes until ctx is cancelled, reconnecting with exponential
// backoff on connection loss.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 0; ; attempt++ {
			delay := backoff(attempt)
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// backoff returns the delay before reconnect attempt n (zero based).
func backoff(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseConsumerReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		QueueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started", zap.String("queue", QueueName), zap.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			jobID, err := decodeMessage(delivery.Body)
			if err != nil {
				c.logger.Error("Failed to decode dispatch message",
					zap.Error(err),
					zap.String("body", string(delivery.Body)),
				)
				_ = delivery.Nack(false, false) // reject → DLQ
				continue
			}

			c.logger.Debug("Received job from queue", zap.String("job_id", jobID.String()))

			msg := newDispatchMessage(jobID, delivery)

			// Blocks while every worker is busy; prefetch caps what the
			// broker hands over meanwhile.
			select {
			case c.jobs <- msg:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
		}
	}
}

// acknowledger is the part of amqp.Delivery the callbacks need.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func newDispatchMessage(jobID uuid.UUID, d acknowledger) *domain.DispatchMessage {
	return &domain.DispatchMessage{
		JobID: jobID,
		Ack: func() error {
			return d.Ack(false)
		},
		Nack: func(requeue bool) error {
			return d.Nack(false, requeue)
		},
	}
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
