package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeTasks    Exchange = "taskbridge.tasks"
	ExchangeAnycards Exchange = "taskbridge.anycards"
	ExchangeDLQ      Exchange = "taskbridge.dlq"
)

const (
	QueueTaskEvents     Queue = "tasks.events"
	QueueAnycardFlagged Queue = "anycards.flagged"
	QueueDLQAnycards    Queue = "dlq.anycards"
)

// Routing keys событий tasks совпадают с dispatch.EventKind.
const (
	RoutingKeyTaskCreated   RoutingKey = "task.created"
	RoutingKeyTaskClaimed   RoutingKey = "task.claimed"
	RoutingKeyTaskCompleted RoutingKey = "task.completed"
	RoutingKeyTaskFailed    RoutingKey = "task.failed"
	RoutingKeyTaskDeleted   RoutingKey = "task.deleted"

	RoutingKeyFlagged     RoutingKey = "flagged"
	RoutingKeyDLQAnycards RoutingKey = "anycards"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полный набор объявлений. Вынесен отдельно от SetupTopology,
// чтобы его можно было проверить без брокера.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeTasks, amqp.ExchangeTopic},
		{ExchangeAnycards, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	queues := []queueDecl{
		{QueueTaskEvents, nil},
		// Сигналы, которые не удалось обработать, уходят в DLQ.
		{QueueAnycardFlagged, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQAnycards),
		}},
		{QueueDLQAnycards, nil},
	}

	bindings := []bindingDecl{
		{QueueTaskEvents, "task.*", ExchangeTasks},
		{QueueAnycardFlagged, RoutingKeyFlagged, ExchangeAnycards},
		{QueueDLQAnycards, RoutingKeyDLQAnycards, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo — описание топологии для логов при старте.
func TopologyInfo() string {
	return `
  TaskBridge RabbitMQ Topology:

    taskbridge.tasks (topic)
    └── tasks.events [routing: task.*]
            created / claimed / completed / failed / deleted

    taskbridge.anycards (direct)
    └── anycards.flagged [routing: flagged]
            Consumer: taskbridge-api (redeem flagger)
            DLQ: dlq.anycards

    taskbridge.dlq (direct)
    └── dlq.anycards [routing: anycards]
            Manual processing
  `
}
