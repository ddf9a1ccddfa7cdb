package domain

import (
	"time"

	"github.com/google/uuid"
)

// Artifact — бинарный файл (скриншот, лог), загруженный воркером для task.
//
// Artifact принадлежит task: удаление task удаляет все её artifacts.
// SHA256 совпадает с дайджестом байтов по StoragePath всё время жизни записи.
type Artifact struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`

	// StoragePath — абсолютный путь к файлу (fs) или URI объекта (minio).
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
