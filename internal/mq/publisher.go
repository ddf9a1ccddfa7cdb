package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/taskbridge/internal/dispatch"
	"github.com/shaiso/taskbridge/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeAnycardFlagged MessageType = "anycard.flagged"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskEventPayload — payload событий жизненного цикла task.
type TaskEventPayload struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
	Payload   domain.Document `json:"payload"`
	Result    domain.Document `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Publisher публикует сообщения в RabbitMQ через LazyConnection.
// Реализует dispatch.EventPublisher.
type Publisher struct {
	conns  *LazyConnection
	logger *slog.Logger
	now    func() time.Time
}

var _ dispatch.EventPublisher = (*Publisher)(nil)

// NewPublisher создаёт Publisher.
func NewPublisher(conns *LazyConnection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conns:  conns,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish публикует сообщение. Если обмен сообщениями недоступен,
// сообщение отбрасывается без ошибки.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	conn, err := p.conns.Get(ctx)
	if errors.Is(err, ErrUnavailable) {
		p.logger.Debug("message dropped, messaging unavailable",
			"exchange", exchange,
			"routing_key", routingKey,
			"type", msg.Type,
		)
		return nil
	}
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTaskEvent публикует событие task в taskbridge.tasks.
func (p *Publisher) PublishTaskEvent(ctx context.Context, ev dispatch.Event) error {
	key, msg := TaskEventMessage(ev, p.now())
	return p.Publish(ctx, ExchangeTasks, key, msg)
}

// TaskEventMessage строит routing key и сообщение для события task.
func TaskEventMessage(ev dispatch.Event, now time.Time) (RoutingKey, *Message) {
	key := RoutingKey("task." + string(ev.Kind))
	t := ev.Task
	return key, &Message{
		ID:   uuid.New().String(),
		Type: MessageType(key),
		Payload: TaskEventPayload{
			TaskID:    t.ID,
			Type:      string(t.Type),
			Status:    string(t.Status),
			LastError: t.LastError,
			Payload:   t.Payload,
			Result:    t.Result,
			UpdatedAt: t.UpdatedAt,
		},
		Timestamp: now,
	}
}
