package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/taskbridge/internal/artifact"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Config — зависимости Dispatcher.
type Config struct {
	Store     repo.Store
	Artifacts *artifact.Store
	Registry  Registry

	// Events — получатель событий; nil отключает публикацию.
	Events EventPublisher
	Logger *slog.Logger

	// Now — источник времени; по умолчанию time.Now().UTC().
	Now func() time.Time
}

// Dispatcher — операции над очередью tasks.
type Dispatcher struct {
	store     repo.Store
	artifacts *artifact.Store
	registry  Registry
	events    EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	registry := cfg.Registry
	if registry == nil {
		registry = Registry{}
	}
	return &Dispatcher{
		store:     cfg.Store,
		artifacts: cfg.Artifacts,
		registry:  registry,
		events:    cfg.Events,
		logger:    logger,
		now:       now,
	}
}

// Create создаёт task в статусе READY.
// Вторая живая task на ту же карту возвращает repo.ErrAlreadyExists.
func (d *Dispatcher) Create(ctx context.Context, rawType string, payload domain.Document) (*domain.Task, error) {
	taskType, err := domain.ParseTaskType(rawType)
	if err != nil {
		return nil, err
	}

	task := domain.NewTask(taskType, payload.Clone(), d.now())
	if err := task.Payload.NormalizeCardNumber(); err != nil {
		return nil, err
	}
	if err := d.store.Tasks().Create(ctx, task); err != nil {
		return nil, err
	}

	telemetry.TasksCreated.WithLabelValues(string(taskType), "api").Inc()
	telemetry.WithTask(d.logger, task.ID, string(taskType)).Info("task created")
	d.publish(ctx, EventCreated, task)
	return task, nil
}

// Get возвращает task по ID.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return d.store.Tasks().GetByID(ctx, id)
}

// List возвращает все tasks, последние изменённые — первыми.
func (d *Dispatcher) List(ctx context.Context) ([]domain.Task, error) {
	tasks, err := d.store.Tasks().List(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// Claim выдаёт воркеру самую старую READY task типа.
//
// Для типов с генератором сначала синхронизируется спрос. Выбор,
// обогащение и перевод в IN_PROGRESS идут в одной транзакции с
// блокировкой строки, поэтому два конкурентных Claim не получат одну task.
// ok=false — очередь пуста (или тип не указан); это не ошибка.
func (d *Dispatcher) Claim(ctx context.Context, rawType string) (*domain.Task, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.claim", attribute.String("task.type", rawType))
	task, ok, err := d.claim(ctx, rawType)
	span.SetAttributes(attribute.Bool("task.claimed", ok))
	telemetry.EndSpan(span, err)
	return task, ok, err
}

func (d *Dispatcher) claim(ctx context.Context, rawType string) (*domain.Task, bool, error) {
	if strings.TrimSpace(rawType) == "" {
		return nil, false, nil
	}
	taskType, err := domain.ParseTaskType(rawType)
	if err != nil {
		return nil, false, err
	}
	h := d.registry.Handler(taskType)

	if h.Generator != nil {
		if _, err := d.runGenerator(ctx, taskType, h.Generator); err != nil {
			return nil, false, err
		}
	}

	var claimed *domain.Task
	err = d.store.InTx(ctx, func(tx repo.Repositories) error {
		next, err := tx.Tasks().NextReady(ctx, taskType)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next task: %w", err)
		}

		if h.Enricher != nil {
			if _, err := h.Enricher.Enrich(ctx, tx, next); err != nil {
				return fmt.Errorf("enrich task %s: %w", next.ID, err)
			}
		}

		next.MarkClaimed(d.now())
		if err := tx.Tasks().Update(ctx, next); err != nil {
			return fmt.Errorf("mark claimed: %w", err)
		}
		claimed = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if claimed == nil {
		telemetry.TaskClaims.WithLabelValues(string(taskType), "empty").Inc()
		return nil, false, nil
	}

	telemetry.TaskClaims.WithLabelValues(string(taskType), "claimed").Inc()
	telemetry.WithTask(d.logger, claimed.ID, string(taskType)).Info("task claimed")
	d.publish(ctx, EventClaimed, claimed)
	return claimed, true, nil
}

// Complete переводит task в SUCCEEDED с результатом.
//
// Предыдущий статус не проверяется. Для типов с Reconciler результат
// применяется к домену в той же транзакции; ошибка откатывает всё.
func (d *Dispatcher) Complete(ctx context.Context, id uuid.UUID, result domain.Document) (*domain.Task, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.complete", attribute.String("task.id", id.String()))
	task, err := d.complete(ctx, id, result)
	telemetry.EndSpan(span, err)
	return task, err
}

func (d *Dispatcher) complete(ctx context.Context, id uuid.UUID, result domain.Document) (*domain.Task, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: result is required", domain.ErrValidation)
	}

	var completed *domain.Task
	err := d.store.InTx(ctx, func(tx repo.Repositories) error {
		task, err := tx.Tasks().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		task.MarkSucceeded(result.Clone(), d.now())

		if r := d.registry.Handler(task.Type).Reconciler; r != nil {
			if err := r.Reconcile(ctx, tx, task, task.Result); err != nil {
				return err
			}
		}

		if err := tx.Tasks().Update(ctx, task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		completed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.TasksFinished.WithLabelValues(string(completed.Type), string(completed.Status)).Inc()
	telemetry.WithTask(d.logger, completed.ID, string(completed.Type)).Info("task completed")
	d.publish(ctx, EventCompleted, completed)
	return completed, nil
}

// Fail переводит task в FAILED. result перезаписывается, только если передан.
// Предыдущий статус не проверяется; FAILED task больше не выдаётся.
func (d *Dispatcher) Fail(ctx context.Context, id uuid.UUID, errMsg string, result domain.Document) (*domain.Task, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.fail", attribute.String("task.id", id.String()))
	task, err := d.fail(ctx, id, errMsg, result)
	telemetry.EndSpan(span, err)
	return task, err
}

func (d *Dispatcher) fail(ctx context.Context, id uuid.UUID, errMsg string, result domain.Document) (*domain.Task, error) {
	if strings.TrimSpace(errMsg) == "" {
		return nil, fmt.Errorf("%w: error is required", domain.ErrValidation)
	}

	var failed *domain.Task
	err := d.store.InTx(ctx, func(tx repo.Repositories) error {
		task, err := tx.Tasks().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		task.MarkFailed(errMsg, result.Clone(), d.now())
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		failed = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.TasksFinished.WithLabelValues(string(failed.Type), string(failed.Status)).Inc()
	telemetry.WithTask(d.logger, failed.ID, string(failed.Type)).Info("task failed", "error", errMsg)
	d.publish(ctx, EventFailed, failed)
	return failed, nil
}

// Delete удаляет task вместе с artifacts.
//
// Метаданные удаляются в транзакции; содержимое artifacts удаляется
// после коммита, ошибки удаления только логируются.
func (d *Dispatcher) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.delete", attribute.String("task.id", id.String()))
	err := d.delete(ctx, id)
	telemetry.EndSpan(span, err)
	return err
}

func (d *Dispatcher) delete(ctx context.Context, id uuid.UUID) error {
	var (
		deleted   *domain.Task
		artifacts []domain.Artifact
	)
	err := d.store.InTx(ctx, func(tx repo.Repositories) error {
		task, err := tx.Tasks().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		artifacts, err = tx.Artifacts().ListByTask(ctx, id)
		if err != nil {
			return fmt.Errorf("list artifacts: %w", err)
		}
		for _, a := range artifacts {
			if err := tx.Artifacts().Delete(ctx, a.ID); err != nil {
				return fmt.Errorf("delete artifact %s: %w", a.ID, err)
			}
		}
		if err := tx.Tasks().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		deleted = task
		return nil
	})
	if err != nil {
		return err
	}

	d.removeContent(ctx, artifacts)

	telemetry.TasksDeleted.Inc()
	d.logger.Info("task deleted", "task_id", id, "artifacts", len(artifacts))
	d.publish(ctx, EventDeleted, deleted)
	return nil
}

// SyncGenerators запускает генераторы всех типов.
// Возвращает число созданных tasks.
func (d *Dispatcher) SyncGenerators(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.sync_generators")
	total, err := d.syncGenerators(ctx)
	span.SetAttributes(attribute.Int("tasks.created", total))
	telemetry.EndSpan(span, err)
	return total, err
}

func (d *Dispatcher) syncGenerators(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, t := range d.registry.GeneratorTypes() {
		n, err := d.runGenerator(ctx, t, d.registry.Handler(t).Generator)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	return total, errors.Join(errs...)
}

func (d *Dispatcher) runGenerator(ctx context.Context, t domain.TaskType, g Generator) (int, error) {
	created, err := g.Sync(ctx, d.store)
	for i := range created {
		d.publish(ctx, EventCreated, &created[i])
	}
	if err != nil {
		return len(created), fmt.Errorf("sync %s generator: %w", t, err)
	}
	return len(created), nil
}

func (d *Dispatcher) removeContent(ctx context.Context, artifacts []domain.Artifact) {
	if d.artifacts == nil {
		return
	}
	for i := range artifacts {
		a := &artifacts[i]
		err := d.artifacts.RemoveContent(ctx, a)
		if err == nil || errors.Is(err, artifact.ErrBlobNotFound) {
			continue
		}
		telemetry.ArtifactCleanupErrors.Inc()
		d.logger.Warn("failed to remove artifact content",
			"task_id", a.TaskID,
			"artifact_id", a.ID,
			"storage_path", a.StoragePath,
			"error", err,
		)
	}
}

func (d *Dispatcher) publish(ctx context.Context, kind EventKind, task *domain.Task) {
	if d.events == nil || task == nil {
		return
	}
	if err := d.events.PublishTaskEvent(ctx, Event{Kind: kind, Task: *task.Clone()}); err != nil {
		d.logger.Warn("failed to publish task event",
			"task_id", task.ID,
			"event", kind,
			"error", err,
		)
	}
}
