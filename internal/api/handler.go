package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/taskbridge/internal/artifact"
	"github.com/shaiso/taskbridge/internal/dispatch"
	"github.com/shaiso/taskbridge/internal/scheduler"
)

// DefaultMaxUploadBytes — лимит загрузки artifact, если не задан.
const DefaultMaxUploadBytes int64 = 64 << 20

// SyncLoop — управляемый фоновый цикл синхронизации (scheduler.Loop).
type SyncLoop interface {
	Start(duration time.Duration) scheduler.Status
	Stop() scheduler.Status
	Status() scheduler.Status
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dispatcher     *dispatch.Dispatcher
	artifacts      *artifact.Store
	sync           SyncLoop
	maxUploadBytes int64
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Artifacts  *artifact.Store

	// Sync — цикл redeem-sync; nil отключает его маршруты (404).
	Sync SyncLoop

	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Handler{
		dispatcher:     cfg.Dispatcher,
		artifacts:      cfg.Artifacts,
		sync:           cfg.Sync,
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
}
