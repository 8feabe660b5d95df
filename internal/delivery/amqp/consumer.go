// Package amqp is the queue intake: qualification tasks published by other
// services are decoded and handed to the engine.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/engine"
)

const (
	queueName = "qualification_tasks"

	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

// TaskEnvelope is the wire format on the qualification_tasks queue. The
// payload shape depends on the type.
type TaskEnvelope struct {
	Type        domain.JobType  `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// Consumer listens to RabbitMQ and enqueues decoded tasks into the engine.
type Consumer struct {
	url     string
	conn    *amqplib.Connection
	channel *amqplib.Channel
	engine  *engine.Engine
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer. Messages are acked once the
// job is accepted by the engine; malformed messages are rejected to the DLQ.
func NewConsumer(url string, eng *engine.Engine, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:     url,
		engine:  eng,
		logger:  logger,
		closeCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes the AMQP connection and channel with prefetch=1.
func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	// Declare the queue (idempotent) so it exists with quorum type.
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqplib.Table{
			"x-queue-type":              "quorum",
			"x-dead-letter-exchange":    "dlx.qualification_tasks",
			"x-dead-letter-routing-key": "qualification_tasks.dlq",
		},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start begins consuming messages. It blocks until the context is cancelled.
// On connection loss it automatically reconnects with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			// Context was cancelled, clean shutdown.
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
			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}

			delay := time.Duration(math.Min(
				float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
				float64(maxReconnectDelay),
			))
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// consume runs one consume session until the delivery channel closes or ctx
// is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // auto-generated consumer tag
		false, // auto-ack disabled (manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			envelope, payload, err := DecodeTask(delivery.Body)
			if err != nil {
				c.logger.Error("Failed to decode task",
					zap.Error(err),
					zap.String("body", string(delivery.Body)),
				)
				delivery.Nack(false, false) // reject to DLQ
				continue
			}

			var opts *engine.EnqueueOptions
			if envelope.MaxAttempts > 0 {
				opts = &engine.EnqueueOptions{MaxAttempts: envelope.MaxAttempts}
			}

			id, err := c.engine.Enqueue(envelope.Type, payload, opts)
			if err != nil {
				c.logger.Error("Failed to enqueue task", zap.Error(err))
				// Engine rejected a decoded task; bad payload goes to DLQ,
				// a stopped engine requeues for the next instance.
				delivery.Nack(false, errors.Is(err, domain.ErrEngineStopped))
				continue
			}

			c.logger.Debug("Task enqueued from queue",
				zap.String("job_id", id.String()),
				zap.String("type", string(envelope.Type)),
			)
			delivery.Ack(false)
		}
	}
}

// DecodeTask parses a queue message into its envelope and typed payload.
func DecodeTask(body []byte) (TaskEnvelope, domain.Payload, error) {
	var envelope TaskEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return envelope, nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch envelope.Type {
	case domain.JobQualifyProspects:
		var p domain.QualifyProspectsPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return envelope, nil, fmt.Errorf("decode qualify payload: %w", err)
		}
		return envelope, p, nil
	case domain.JobAnalyzeDomain:
		var p domain.AnalyzeDomainPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return envelope, nil, fmt.Errorf("decode analyze payload: %w", err)
		}
		return envelope, p, nil
	case domain.JobGenerateProfile:
		var p domain.GenerateProfilePayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return envelope, nil, fmt.Errorf("decode profile payload: %w", err)
		}
		return envelope, p, nil
	default:
		return envelope, nil, fmt.Errorf("unknown task type %q", envelope.Type)
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
