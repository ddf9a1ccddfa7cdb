package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/taskbridge/internal/domain"
)

// ArtifactRepo — репозиторий метаданных artifacts.
type ArtifactRepo struct {
	db dbtx
}

// NewArtifactRepo создаёт новый ArtifactRepo.
func NewArtifactRepo(db dbtx) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

const artifactColumns = `id, task_id, filename, content_type, size_bytes, sha256, storage_path, created_at`

// Create сохраняет метаданные artifact.
func (r *ArtifactRepo) Create(ctx context.Context, a *domain.Artifact) error {
	query := `
		INSERT INTO automation_task_artifacts (` + artifactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.TaskID,
		a.Filename,
		nullString(a.ContentType),
		a.SizeBytes,
		a.SHA256,
		a.StoragePath,
		a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetByID возвращает artifact по ID.
func (r *ArtifactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM automation_task_artifacts WHERE id = $1`
	return scanArtifact(r.db.QueryRow(ctx, query, id))
}

// ListByTask возвращает artifacts task в порядке загрузки.
func (r *ArtifactRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.Artifact, error) {
	query := `
		SELECT ` + artifactColumns + `
		FROM automation_task_artifacts
		WHERE task_id = $1
		ORDER BY created_at ASC, id
	`
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// Delete удаляет метаданные artifact.
func (r *ArtifactRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM automation_task_artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var a domain.Artifact
	var contentType *string

	err := row.Scan(
		&a.ID,
		&a.TaskID,
		&a.Filename,
		&contentType,
		&a.SizeBytes,
		&a.SHA256,
		&a.StoragePath,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	a.ContentType = derefString(contentType)
	return &a, nil
}
