// Package events publishes tracking state transitions for the external
// notification service to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"cafetrack/internal/domain"
)

// Publisher emits tracking lifecycle events.
type Publisher interface {
	StatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error
	TrackingStopped(ctx context.Context, orderID string, final domain.OrderStatus) error
}

// StatusEvent is the wire form of a published event.
type StatusEvent struct {
	EventID string    `json:"event_id"`
	OrderID string    `json:"order_id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}

const (
	statusChangedKey   = "order.status.changed"
	trackingStoppedKey = "order.tracking.stopped"
)

// AMQPPublisher publishes events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials RabbitMQ and declares the topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// StatusChanged publishes an order status transition.
func (p *AMQPPublisher) StatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	return p.publish(ctx, statusChangedKey, StatusEvent{
		EventID: uuid.NewString(),
		OrderID: orderID,
		From:    string(from),
		To:      string(to),
		At:      time.Now().UTC(),
	})
}

// TrackingStopped publishes the end of a tracking session.
func (p *AMQPPublisher) TrackingStopped(ctx context.Context, orderID string, final domain.OrderStatus) error {
	return p.publish(ctx, trackingStoppedKey, StatusEvent{
		EventID: uuid.NewString(),
		OrderID: orderID,
		To:      string(final),
		At:      time.Now().UTC(),
	})
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event StatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.EventID,
		Timestamp:   event.At,
		Body:        body,
	})
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) StatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	return nil
}

func (NopPublisher) TrackingStopped(ctx context.Context, orderID string, final domain.OrderStatus) error {
	return nil
}

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NopPublisher{}
)
