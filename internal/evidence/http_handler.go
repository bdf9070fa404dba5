package evidence

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxUploadSize caps evidence photo uploads at 20 MB.
const maxUploadSize = 20 << 20

// Handler exposes evidence upload and retrieval over HTTP.
type Handler struct {
	service *EvidenceService
}

func NewHandler(service *EvidenceService) *Handler {
	return &Handler{service: service}
}

// HandleUpload accepts a multipart photo upload bound to an inspection step.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart form or file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mime := header.Header.Get("Content-Type")
	uploadCtx := UploadContext{
		OrderID: r.FormValue("orderId"),
		RunID:   r.FormValue("runId"),
		StepID:  r.FormValue("stepId"),
	}

	metadata, err := h.service.Upload(r.Context(), header.Filename, file, header.Size, mime, uploadCtx)
	if err != nil {
		if strings.Contains(err.Error(), "unsupported content type") {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		slog.ErrorContext(r.Context(), "evidence upload failed", "error", err)
		http.Error(w, "Failed to store evidence photo", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(metadata)
}

// HandleDownload streams a stored photo back to the caller.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	key := "evidence/" + r.PathValue("id")

	body, contentType, err := h.service.Download(r.Context(), key)
	if err != nil {
		http.Error(w, "Photo not found", http.StatusNotFound)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, body); err != nil {
		slog.ErrorContext(r.Context(), "evidence download interrupted", "key", key, "error", err)
	}
}

// HandleDelete removes a photo that is no longer referenced.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key := "evidence/" + r.PathValue("id")

	if err := h.service.Remove(r.Context(), key); err != nil {
		slog.ErrorContext(r.Context(), "evidence delete failed", "key", key, "error", err)
		http.Error(w, "Failed to delete evidence photo", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
