package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/shaiso/taskbridge/internal/domain"
)

// uploadField — имя поля multipart с файлом.
const uploadField = "file"

// UploadArtifact сохраняет файл как artifact task.
// POST /api/v1/tasks/{id}/artifacts (multipart/form-data, поле "file")
//
// Файл читается потоком, целиком в память не загружается.
func (h *Handler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		BadRequest(w, "multipart/form-data body is required")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			BadRequest(w, fmt.Sprintf("multipart field %q is required", uploadField))
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(err, &tooLarge) {
				err = fmt.Errorf("%w: invalid multipart body: %v", domain.ErrValidation, err)
			}
			HandleError(w, h.logger, err, "")
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		a, err := h.artifacts.Store(r.Context(), taskID, part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if HandleError(w, h.logger, err, "task not found") {
			return
		}

		Created(w, ArtifactFromDomain(*a))
		return
	}
}

// ListArtifacts возвращает artifacts task в порядке загрузки.
// GET /api/v1/tasks/{id}/artifacts
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id", "invalid task id")
	if !ok {
		return
	}

	artifacts, err := h.artifacts.List(r.Context(), taskID)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	result := make([]ArtifactResponse, len(artifacts))
	for i, a := range artifacts {
		result[i] = ArtifactFromDomain(a)
	}

	List(w, result, len(result))
}

// DownloadArtifact отдаёт содержимое artifact.
// GET /api/v1/artifacts/{id}
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid artifact id")
	if !ok {
		return
	}

	dl, err := h.artifacts.Open(r.Context(), id)
	if HandleError(w, h.logger, err, "artifact not found") {
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, dl.Artifact.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Artifact.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("artifact download interrupted", "artifact_id", id, "error", err)
	}
}
