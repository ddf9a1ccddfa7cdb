// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//   - tracing.go — OpenTelemetry трассировка (OTEL_EXPORTER: none, stdout, otlphttp)
//
// API и CLI используют единый формат логирования,
// сервер экспортирует метрики на /metrics endpoint.
package telemetry
