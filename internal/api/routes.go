package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Tracing(),
		Metrics(),
		Logging(h.logger),
	)

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.CreateTask)))
	mux.Handle("GET /api/v1/tasks/next", chain(http.HandlerFunc(h.ClaimTask)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("DELETE /api/v1/tasks/{id}", chain(http.HandlerFunc(h.DeleteTask)))
	mux.Handle("POST /api/v1/tasks/{id}/complete", chain(http.HandlerFunc(h.CompleteTask)))
	mux.Handle("POST /api/v1/tasks/{id}/fail", chain(http.HandlerFunc(h.FailTask)))

	// Artifacts
	mux.Handle("POST /api/v1/tasks/{id}/artifacts", chain(http.HandlerFunc(h.UploadArtifact)))
	mux.Handle("GET /api/v1/tasks/{id}/artifacts", chain(http.HandlerFunc(h.ListArtifacts)))
	mux.Handle("GET /api/v1/artifacts/{id}", chain(http.HandlerFunc(h.DownloadArtifact)))

	// Redeem sync
	mux.Handle("GET /api/v1/redeem-sync/status", chain(http.HandlerFunc(h.SyncStatus)))
	mux.Handle("POST /api/v1/redeem-sync/start", chain(http.HandlerFunc(h.StartSync)))
	mux.Handle("POST /api/v1/redeem-sync/stop", chain(http.HandlerFunc(h.StopSync)))
}
