package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
)

// TaskRepository — CRUD над task.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUpdate загружает task и блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List возвращает все tasks, отсортированные по updated_at DESC.
	List(ctx context.Context) ([]domain.Task, error)

	// ListByType возвращает tasks одного типа по created_at ASC.
	ListByType(ctx context.Context, taskType domain.TaskType) ([]domain.Task, error)

	// NextReady находит самую старую READY task данного типа и блокирует её.
	// Строки, заблокированные другими транзакциями, пропускаются.
	// Возвращает ErrNotFound, если подходящей task нет.
	NextReady(ctx context.Context, taskType domain.TaskType) (*domain.Task, error)

	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ArtifactRepository — метаданные artifacts.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *domain.Artifact) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)

	// ListByTask возвращает artifacts task по created_at ASC.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.Artifact, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// AnycardRepository — доступ к погашаемым картам.
type AnycardRepository interface {
	Create(ctx context.Context, card *domain.Anycard) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Anycard, error)
	FindByCardNumber(ctx context.Context, cardNumber string) (*domain.Anycard, error)
	FindBySerialNumber(ctx context.Context, serialNumber string) (*domain.Anycard, error)
	FindByTypeAndCardNumber(ctx context.Context, cardType domain.AnycardType, cardNumber string) (*domain.Anycard, error)
	ListNeedsRedeem(ctx context.Context) ([]domain.Anycard, error)
	Update(ctx context.Context, card *domain.Anycard) error
}

// Repositories — набор репозиториев, привязанных к одному соединению
// или одной транзакции.
type Repositories interface {
	Tasks() TaskRepository
	Artifacts() ArtifactRepository
	Anycards() AnycardRepository
}

// Store — транзакционное хранилище.
//
// Методы Repositories работают вне транзакции (autocommit).
// InTx выполняет fn в одной транзакции: ошибка из fn откатывает всё.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}
