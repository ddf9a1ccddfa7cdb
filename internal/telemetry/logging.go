package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel определяет уровень логирования из LOG_LEVEL.
// Понимает DEBUG, INFO, WARN, ERROR в любом регистре и смещения
// вида "DEBUG+2"; иначе INFO.
func LogLevel() slog.Level {
	return parseLevel(os.Getenv("LOG_LEVEL"))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SetupLogger инициализирует глобальный логгер сервиса.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, service, LogLevel(), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер с атрибутом service. На уровне DEBUG
// в записи добавляется место вызова.
func NewLogger(w io.Writer, service string, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

type loggerKey struct{}

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext извлекает логгер из контекста (иначе глобальный).
// Если в контексте есть span, к записям добавляется trace_id.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}
	return logger
}

// WithTask возвращает логгер с task_id и task_type.
func WithTask(logger *slog.Logger, id uuid.UUID, taskType string) *slog.Logger {
	return logger.With("task_id", id, "task_type", taskType)
}

// WithArtifact возвращает логгер с task_id и artifact_id.
func WithArtifact(logger *slog.Logger, taskID, artifactID uuid.UUID) *slog.Logger {
	return logger.With("task_id", taskID, "artifact_id", artifactID)
}

// WithAnycard возвращает логгер с anycard_id и маскированным номером карты.
func WithAnycard(logger *slog.Logger, id uuid.UUID, cardNumber string) *slog.Logger {
	return logger.With("anycard_id", id, "card_number", MaskCardNumber(cardNumber))
}

// MaskCardNumber оставляет в номере карты последние четыре символа.
func MaskCardNumber(cardNumber string) string {
	cardNumber = strings.TrimSpace(cardNumber)
	if len(cardNumber) <= 4 {
		return cardNumber
	}
	return strings.Repeat("*", len(cardNumber)-4) + cardNumber[len(cardNumber)-4:]
}
