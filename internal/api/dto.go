package api

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
)

// Task DTOs

// CreateTaskRequest — запрос на создание task.
type CreateTaskRequest struct {
	Type    string          `json:"type"`
	Payload domain.Document `json:"payload"`
}

// CompleteTaskRequest — отчёт воркера об успехе.
type CompleteTaskRequest struct {
	Result domain.Document `json:"result"`
}

// FailTaskRequest — отчёт воркера об ошибке. Result необязателен.
type FailTaskRequest struct {
	Error  string          `json:"error"`
	Result domain.Document `json:"result,omitempty"`
}

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Payload   domain.Document `json:"payload"`
	Result    domain.Document `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	payload := t.Payload
	if payload == nil {
		payload = domain.Document{}
	}
	return TaskResponse{
		ID:        t.ID,
		Type:      string(t.Type),
		Status:    string(t.Status),
		Payload:   payload,
		Result:    t.Result,
		LastError: t.LastError,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// Artifact DTOs

// ArtifactResponse — метаданные artifact. Путь хранения наружу не отдаётся.
type ArtifactResponse struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactFromDomain конвертирует domain.Artifact в ArtifactResponse.
func ArtifactFromDomain(a domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:          a.ID,
		TaskID:      a.TaskID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		SHA256:      a.SHA256,
		CreatedAt:   a.CreatedAt,
	}
}

// decodeJSON читает тело запроса. Числа остаются json.Number,
// чтобы длинные номера карт не теряли точность.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
