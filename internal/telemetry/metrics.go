package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики очереди. Регистрируются в prometheus.DefaultRegisterer.
var (
	// TasksCreated — созданные tasks по типу и источнику (api, generator).
	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbridge_tasks_created_total",
		Help: "Tasks created, by type and source",
	}, []string{"type", "source"})

	// TaskClaims — результаты claim: claimed или empty.
	TaskClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbridge_task_claims_total",
		Help: "Claim attempts, by type and outcome",
	}, []string{"type", "outcome"})

	// TasksFinished — tasks, переведённые в терминальный статус.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbridge_tasks_finished_total",
		Help: "Tasks moved to a terminal status, by type and status",
	}, []string{"type", "status"})

	// TasksDeleted — удалённые tasks.
	TasksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbridge_tasks_deleted_total",
		Help: "Tasks deleted explicitly",
	})

	// AnycardsCleared — anycards со сброшенным needsRedeem.
	AnycardsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbridge_anycards_cleared_total",
		Help: "Anycards whose needs-redeem flag was cleared",
	})

	// ArtifactsStored — сохранённые artifacts.
	ArtifactsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbridge_artifacts_stored_total",
		Help: "Artifacts stored",
	})

	// ArtifactBytes — суммарный объём сохранённых artifacts.
	ArtifactBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbridge_artifact_bytes_total",
		Help: "Bytes of artifact content stored",
	})

	// ArtifactCleanupErrors — ошибки удаления файлов при каскадном удалении.
	ArtifactCleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbridge_artifact_cleanup_errors_total",
		Help: "Best-effort artifact blob removals that failed",
	})

	// SyncRuns — итерации фоновых циклов (ok, error).
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbridge_sync_runs_total",
		Help: "Background loop iterations, by loop and outcome",
	}, []string{"loop", "outcome"})

	// HTTPRequests — HTTP-запросы по методу и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbridge_http_requests_total",
		Help: "HTTP requests handled, by method and status code",
	}, []string{"method", "code"})

	// HTTPDuration — длительность обработки HTTP-запросов.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskbridge_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
