package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kgrag/backend/internal/util"

	"github.com/rabbitmq/amqp091-go"
)

const (
	IngestQueue = "ingest_queue"

	// EventsExchange carries job outcomes, routed by TopicCompleted and
	// TopicFailed.
	EventsExchange = "ingest_events"
	TopicCompleted = "ingest.completed"
	TopicFailed    = "ingest.failed"

	retryDelay = 10 * time.Second
)

// Publisher is satisfied by *amqp091.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Init dials RabbitMQ using the RABBITMQ_* variables.
func Init() (*amqp091.Connection, error) {
	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares the events exchange and, for every queue, a
// durable work queue plus its "_retry" and "_dlq" companions. Messages in
// the retry queue dead-letter back into the work queue after retryDelay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}

	for _, name := range queueNames {
		declarations := []struct {
			name string
			args amqp091.Table
		}{
			{name, nil},
			{name + "_dlq", nil},
			{name + "_retry", amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			}},
		}
		for _, d := range declarations {
			if _, err := ch.QueueDeclare(d.name, true, false, false, false, d.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", d.name, err)
			}
		}
	}

	return nil
}

// PublishFIFO sends a persistent message to a queue declared by SetupQueues.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte) error {
	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// PublishTopic sends an event to EventsExchange.
func PublishTopic(ctx context.Context, ch Publisher, topic string, data []byte) error {
	return ch.PublishWithContext(ctx, EventsExchange, topic, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}
