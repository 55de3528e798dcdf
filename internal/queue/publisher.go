// Package queue publishes named background jobs to RabbitMQ. The
// worker consuming them guarantees at-least-once execution, so every
// job payload must be safe to replay.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Job names understood by the worker.
const (
	JobSendReminder    = "send-reminder"
	JobGenerateSummary = "generate-summary"
	JobPurgeSensitive  = "purge-sensitive"
)

// Publisher enqueues a named job with a JSON payload.
type Publisher interface {
	Publish(ctx context.Context, job string, payload interface{}) error
	Close() error
}

type message struct {
	Job        string      `json:"job"`
	Payload    interface{} `json:"payload"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

type amqpPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher connects to the broker and declares the durable job
// queue. Messages are marked persistent so they survive broker
// restarts.
func NewAMQPPublisher(url, queueName string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}
	return &amqpPublisher{conn: conn, ch: ch, queue: queueName}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, job string, payload interface{}) error {
	body, err := json.Marshal(message{Job: job, Payload: payload, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job, err)
	}
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (p *amqpPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

// Nop discards jobs, used when no broker is configured. Each drop is
// logged once at debug level so a misconfigured deployment is visible.
type Nop struct{}

func (Nop) Publish(_ context.Context, job string, _ interface{}) error {
	slog.Debug("job queue not configured, dropping job", "job", job)
	return nil
}

func (Nop) Close() error { return nil }
