// Package dispatch hands job ids from the API to workers over RabbitMQ.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "codr.direct"
	exchangeType = "direct"
	routingKey   = "execute"

	deadLetterExchange = "codr.dlx"
	deadLetterQueue    = "codr.dead_letter"

	// QueueName is the queue workers consume from.
	QueueName = "execution_jobs"
)

// declareTopology declares the exchanges and queues both sides rely on.
// Declarations are idempotent.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare DLQ: %w", err)
	}
	if err := ch.QueueBind(deadLetterQueue, "", deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": deadLetterExchange,
		"x-queue-type":           "quorum",
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue: %w", err)
	}
	return nil
}

// message is the wire format of a dispatched job. The job itself stays in
// the job store; only its id travels.
type message struct {
	JobID uuid.UUID `json:"job_id"`
}

func encodeMessage(jobID uuid.UUID) ([]byte, error) {
	return json.Marshal(message{JobID: jobID})
}

func decodeMessage(body []byte) (uuid.UUID, error) {
	var m message
	if err := json.Unmarshal(body, &m); err != nil {
		return uuid.Nil, fmt.Errorf("decode dispatch message: %w", err)
	}
	if m.JobID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("decode dispatch message: missing job_id")
	}
	return m.JobID, nil
}
