// Package event publishes attempt lifecycle events to RabbitMQ.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// Exchange is the topic exchange all attempt events go to.
const Exchange = "mockexam.events"

// Type is the routing key of an event.
type Type string

const (
	TypeAttemptStarted   Type = "attempt.started"
	TypeAttemptSubmitted Type = "attempt.submitted"
)

// AttemptEvent is the message body.
type AttemptEvent struct {
	Type       Type               `json:"event_type"`
	AttemptID  string             `json:"attempt_id"`
	LearnerID  int                `json:"learner_id"`
	ExamSlug   string             `json:"exam_slug"`
	Result     *assessment.Result `json:"result,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Publisher sends attempt events.
type Publisher interface {
	Publish(ctx context.Context, ev *AttemptEvent) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
// With an empty URL it is disabled and every publish is a logged no-op.
type AMQPPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	enabled bool
	log     zerolog.Logger
}

// NewAMQPPublisher dials url and declares the exchange.
func NewAMQPPublisher(url string, log zerolog.Logger) (*AMQPPublisher, error) {
	log = log.With().Str("component", "event_publisher").Logger()
	if url == "" {
		log.Warn().Msg("AMQP_URL is empty, event publishing is disabled")
		return &AMQPPublisher{log: log}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.Info().Str("exchange", Exchange).Msg("Event publisher ready")
	return &AMQPPublisher{conn: conn, channel: ch, enabled: true, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev *AttemptEvent) error {
	if !p.enabled {
		p.log.Debug().Str("event", string(ev.Type)).Msg("Publishing disabled, event skipped")
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, Exchange, string(ev.Type), false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    ev.OccurredAt,
			Body:         body,
			Headers: amqp091.Table{
				"event_type": string(ev.Type),
				"attempt_id": ev.AttemptID,
				"learner_id": int32(ev.LearnerID),
			},
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	p.log.Debug().Str("event", string(ev.Type)).Str("attempt_id", ev.AttemptID).Msg("Event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.log.Warn().Err(err).Msg("Close channel")
	}
	return p.conn.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *AttemptEvent) error { return nil }
func (Nop) Close() error { return nil }
