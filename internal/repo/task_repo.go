package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/taskbridge/internal/domain"
)

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	db dbtx
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(db dbtx) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `id, type, status, payload, result, last_error, created_at, updated_at`

// Create создаёт новую task.
// Вторая живая task на ту же карту возвращает ErrAlreadyExists.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	payloadJSON, err := domain.EncodeDocument(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resultJSON, err := encodeOptional(task.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO automation_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		task.ID,
		task.Type,
		task.Status,
		payloadJSON,
		resultJSON,
		nullString(task.LastError),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID возвращает task по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM automation_tasks WHERE id = $1`
	return scanTask(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate возвращает task по ID и блокирует строку.
func (r *TaskRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM automation_tasks WHERE id = $1 FOR UPDATE`
	return scanTask(r.db.QueryRow(ctx, query, id))
}

// List возвращает все tasks, последние изменённые — первыми.
func (r *TaskRepo) List(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM automation_tasks ORDER BY updated_at DESC, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListByType возвращает tasks типа в порядке создания.
func (r *TaskRepo) ListByType(ctx context.Context, taskType domain.TaskType) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM automation_tasks
		WHERE type = $1
		ORDER BY created_at ASC, id
	`
	rows, err := r.db.Query(ctx, query, taskType)
	if err != nil {
		return nil, fmt.Errorf("list tasks by type: %w", err)
	}
	return collectTasks(rows)
}

// NextReady блокирует самую старую READY task типа.
// Строки, уже заблокированные конкурентами, пропускаются.
func (r *TaskRepo) NextReady(ctx context.Context, taskType domain.TaskType) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM automation_tasks
		WHERE type = $1 AND status = $2
		ORDER BY created_at ASC, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	return scanTask(r.db.QueryRow(ctx, query, taskType, domain.TaskStatusReady))
}

// Update сохраняет изменяемые поля task.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	payloadJSON, err := domain.EncodeDocument(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resultJSON, err := encodeOptional(task.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE automation_tasks
		SET status = $2, payload = $3, result = $4, last_error = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		task.ID,
		task.Status,
		payloadJSON,
		resultJSON,
		nullString(task.LastError),
		task.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет task. Artifacts должны быть удалены раньше.
func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM automation_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var payloadJSON, resultJSON []byte
	var lastError *string

	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&payloadJSON,
		&resultJSON,
		&lastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if task.Payload, err = domain.DecodeDocument(payloadJSON); err != nil {
		return nil, fmt.Errorf("%w: task %s payload: %v", ErrCorruptDocument, task.ID, err)
	}
	if task.Payload == nil {
		task.Payload = domain.Document{}
	}
	if task.Result, err = domain.DecodeDocument(resultJSON); err != nil {
		return nil, fmt.Errorf("%w: task %s result: %v", ErrCorruptDocument, task.ID, err)
	}
	task.LastError = derefString(lastError)

	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// encodeOptional кодирует документ, nil остаётся SQL NULL.
func encodeOptional(doc domain.Document) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	return domain.EncodeDocument(doc)
}
