/**
 * @description
 * RabbitMQ producer for analytics events. Events are fire-and-forget: the
 * claim and creation flows never wait on, or fail because of, the broker.
 * When the broker is unreachable at startup the service falls back to a
 * logging no-op producer instead of refusing to start.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer publishes events to a durable topic exchange.
type EventProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger

	declared map[string]bool
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable
// at startup. It logs events instead of failing the service hard.
type EventProducerFallback struct {
	Logger *slog.Logger
}

// Publish logs the event that would have been published.
func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.Logger.Info("analytics fallback: event dropped", "exchange", exchange, "routing_key", routingKey)
	return nil
}

// Close is a no-op.
func (p *EventProducerFallback) Close() {}

// NewEventProducer establishes a connection and channel to RabbitMQ.
func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL := strings.TrimSpace(strings.Trim(amqpURL, "\"'"))
	u, err := url.Parse(cleanURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{
		conn:     conn,
		channel:  ch,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// Publish sends a message to a durable topic exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared[exchange] = true
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
	if err != nil {
		p.logger.Warn("failed to publish event", "exchange", exchange, "routing_key", routingKey, "error", err)
		return err
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
