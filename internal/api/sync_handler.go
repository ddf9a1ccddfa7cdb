package api

import (
	"net/http"
	"time"
)

// SyncStatus возвращает состояние цикла redeem-sync.
// GET /api/v1/redeem-sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if !h.syncEnabled(w) {
		return
	}
	Success(w, h.sync.Status())
}

// StartSync запускает цикл redeem-sync.
// POST /api/v1/redeem-sync/start?duration=30m
//
// Без duration используется длительность по умолчанию.
// Повторный запуск работающего цикла ничего не меняет.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	if !h.syncEnabled(w) {
		return
	}

	var duration time.Duration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			BadRequest(w, "invalid duration")
			return
		}
		duration = d
	}

	Success(w, h.sync.Start(duration))
}

// StopSync останавливает цикл redeem-sync.
// POST /api/v1/redeem-sync/stop
func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	if !h.syncEnabled(w) {
		return
	}
	Success(w, h.sync.Stop())
}

func (h *Handler) syncEnabled(w http.ResponseWriter) bool {
	if h.sync == nil {
		NotFound(w, "redeem sync is not configured")
		return false
	}
	return true
}
