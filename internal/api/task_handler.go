package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListTasks возвращает все tasks, последние изменённые — первыми.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.dispatcher.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// CreateTask создаёт task в статусе READY.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.dispatcher.Create(r.Context(), req.Type, req.Payload)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, TaskFromDomain(*task))
}

// GetTask возвращает task по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	task, err := h.dispatcher.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// ClaimTask выдаёт самую старую READY task типа.
// GET /api/v1/tasks/next?type=...
//
// Пустая очередь (или type не указан) — 204 без тела.
func (h *Handler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	task, ok, err := h.dispatcher.Claim(r.Context(), r.URL.Query().Get("type"))
	if HandleError(w, h.logger, err, "") {
		return
	}
	if !ok {
		NoContent(w)
		return
	}

	Success(w, TaskFromDomain(*task))
}

// CompleteTask принимает результат воркера.
// POST /api/v1/tasks/{id}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	var req CompleteTaskRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.dispatcher.Complete(r.Context(), id, req.Result)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// FailTask принимает ошибку воркера.
// POST /api/v1/tasks/{id}/fail
func (h *Handler) FailTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	var req FailTaskRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.dispatcher.Fail(r.Context(), id, req.Error, req.Result)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// DeleteTask удаляет task вместе с artifacts.
// DELETE /api/v1/tasks/{id}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	err := h.dispatcher.Delete(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	NoContent(w)
}

// pathUUID парсит UUID из пути; при ошибке отвечает 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		BadRequest(w, msg)
		return uuid.Nil, false
	}
	return id, true
}
