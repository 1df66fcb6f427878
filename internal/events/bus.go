// Package events publishes ledger change notifications over AMQP so
// background consumers (the advisor worker, report exports) can react
// without polling the backend.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Bus is a publisher and consumer over one AMQP exchange/queue pair.
type Bus struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewBus(url, exchangeName, queueName string) (*Bus, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	bus := &Bus{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := bus.setup(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return bus, nil
}

func (b *Bus) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = b.channel.QueueDeclare(
		b.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = b.channel.QueueBind(
		b.queueName,
		b.queueName, // routing key matches queue name on a direct exchange
		b.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Publish sends one change event. Callers treat publish failures as
// non-fatal; the dashboard state is already saved on the backend.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = b.channel.PublishWithContext(
		ctx,
		b.exchangeName,
		b.queueName,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	slog.InfoContext(ctx, "Published ledger event",
		"event_id", event.ID,
		"kind", event.Kind,
		"user_id", event.UserID,
		"exchange", b.exchangeName)

	return nil
}

// Consume delivers events to the handler until the context is cancelled.
// A handler error nacks with requeue; an undecodable event is dropped.
func (b *Bus) Consume(ctx context.Context, handler func(*Event) error) error {
	msgs, err := b.channel.Consume(
		b.queueName,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger events", "queue", b.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			event, err := EventFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal event", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(event); err != nil {
				slog.ErrorContext(ctx, "Failed to handle event",
					"error", err,
					"event_id", event.ID,
					"kind", event.Kind)
				if isConnectionError(err) {
					delivery.Nack(false, true)
					return fmt.Errorf("handle event: %w", err)
				}
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (b *Bus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// RunConsumer keeps a consumer alive across broker restarts. It redials
// with exponential backoff whenever the connection drops and returns
// only when the context is cancelled.
func RunConsumer(ctx context.Context, url, exchangeName, queueName string, handler func(*Event) error) error {
	attempt := 0
	for {
		bus, err := NewBus(url, exchangeName, queueName)
		if err != nil {
			wait := exponentialBackoff(attempt)
			attempt++
			slog.ErrorContext(ctx, "AMQP connect failed, retrying",
				"error", err, "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}
		attempt = 0

		err = bus.Consume(ctx, handler)
		bus.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := exponentialBackoff(attempt)
		attempt++
		slog.ErrorContext(ctx, "Event consumption stopped, reconnecting",
			"error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// exponentialBackoff returns the wait before reconnect attempt n,
// doubling from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	backoff := time.Second << uint(attempt)
	if backoff > 30*time.Second || backoff <= 0 {
		return 30 * time.Second
	}
	return backoff
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
