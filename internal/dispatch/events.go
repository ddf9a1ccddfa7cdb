package dispatch

import (
	"context"

	"github.com/shaiso/taskbridge/internal/domain"
)

// EventKind — вид события жизненного цикла task.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventClaimed   EventKind = "claimed"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventDeleted   EventKind = "deleted"
)

// Event — событие о task, публикуемое после коммита.
type Event struct {
	Kind EventKind
	Task domain.Task
}

// EventPublisher доставляет события подписчикам.
// Ошибка публикации логируется и не влияет на операцию.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event Event) error
}
