package artifact

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/taskbridge/internal/domain"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Config — зависимости Store.
type Config struct {
	Repo   repo.Store
	Blob   Blob
	Logger *slog.Logger

	// Now — источник времени; по умолчанию time.Now().UTC().
	Now func() time.Time
}

// Store сохраняет и выдаёт artifacts.
type Store struct {
	repo   repo.Store
	blob   Blob
	logger *slog.Logger
	now    func() time.Time
}

// NewStore создаёт Store.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		repo:   cfg.Repo,
		blob:   cfg.Blob,
		logger: logger,
		now:    now,
	}
}

// Download — открытое содержимое artifact. Body нужно закрыть.
type Download struct {
	Artifact    *domain.Artifact
	ContentType string
	Body        io.ReadCloser
}

// Store сохраняет поток r как artifact task.
//
// Поток читается один раз: байты уходят в Blob через TeeReader,
// параллельно считается SHA-256. Сбой записи или хеширования
// возвращает ErrStorage.
func (s *Store) Store(ctx context.Context, taskID uuid.UUID, filename, contentType string, r io.Reader) (*domain.Artifact, error) {
	if _, err := s.repo.Tasks().GetByID(ctx, taskID); err != nil {
		return nil, err
	}

	a := &domain.Artifact{
		ID:          uuid.New(),
		TaskID:      taskID,
		Filename:    SanitizeFilename(filename),
		ContentType: contentType,
	}
	key := BlobKey(taskID, a.ID, a.Filename)

	hasher := sha256.New()
	location, size, err := s.blob.Put(ctx, key, io.TeeReader(r, hasher), contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	a.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	a.SizeBytes = size
	a.StoragePath = location
	a.CreatedAt = s.now()

	// Task могла быть удалена, пока шла загрузка: блокируем её строку.
	err = s.repo.InTx(ctx, func(tx repo.Repositories) error {
		if _, err := tx.Tasks().GetForUpdate(ctx, taskID); err != nil {
			return err
		}
		return tx.Artifacts().Create(ctx, a)
	})
	if err != nil {
		if rmErr := s.blob.Remove(ctx, location); rmErr != nil && !errors.Is(rmErr, ErrBlobNotFound) {
			s.logger.Warn("failed to remove orphan artifact content",
				"artifact_id", a.ID, "location", location, "error", rmErr)
		}
		return nil, err
	}

	telemetry.ArtifactsStored.Inc()
	telemetry.ArtifactBytes.Add(float64(size))
	telemetry.WithArtifact(s.logger, taskID, a.ID).Info("artifact stored",
		"filename", a.Filename,
		"size_bytes", a.SizeBytes,
		"sha256", a.SHA256,
	)
	return a, nil
}

// List возвращает artifacts task в порядке загрузки.
// Для несуществующей task возвращает repo.ErrNotFound.
func (s *Store) List(ctx context.Context, taskID uuid.UUID) ([]domain.Artifact, error) {
	if _, err := s.repo.Tasks().GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	artifacts, err := s.repo.Artifacts().ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}
	return artifacts, nil
}

// Get возвращает метаданные artifact.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	return s.repo.Artifacts().GetByID(ctx, id)
}

// Open открывает содержимое artifact для скачивания.
//
// Отсутствие записи или файла — repo.ErrNotFound. Если тип содержимого
// не был записан при загрузке, он определяется по имени и первым байтам.
func (s *Store) Open(ctx context.Context, id uuid.UUID) (*Download, error) {
	a, err := s.repo.Artifacts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := s.blob.Open(ctx, a.StoragePath)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, fmt.Errorf("%w: artifact %s content is missing", repo.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	br := bufio.NewReaderSize(body, sniffLen)
	var head []byte
	if a.ContentType == "" {
		head, _ = br.Peek(sniffLen)
	}
	return &Download{
		Artifact:    a,
		ContentType: ResolveContentType(a.ContentType, a.Filename, head),
		Body:        readCloser{Reader: br, Closer: body},
	}, nil
}

// RemoveContent удаляет содержимое artifact. Метаданные не трогает.
func (s *Store) RemoveContent(ctx context.Context, a *domain.Artifact) error {
	return s.blob.Remove(ctx, a.StoragePath)
}

// BlobKey — ключ содержимого: {taskId}/{artifactId}_{filename}.
func BlobKey(taskID, artifactID uuid.UUID, filename string) string {
	return taskID.String() + "/" + artifactID.String() + "_" + filename
}

type readCloser struct {
	io.Reader
	io.Closer
}
