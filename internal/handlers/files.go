package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/adamara/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// FileHandler serves stored attachments.
type FileHandler struct {
	attachments *services.AttachmentService
	logger      *slog.Logger
}

func NewFileHandler(attachments *services.AttachmentService, logger *slog.Logger) *FileHandler {
	return &FileHandler{attachments: attachments, logger: logger}
}

// FileRouter registers the download route. Every route needs authMiddleware.
func FileRouter(r chi.Router, handler *FileHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/{name}", handler.Download)
}

// Download redirects to a presigned URL when the backend can issue one
// and streams the object otherwise.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	url, ok, err := h.attachments.DownloadURL(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "file not found", "failed to fetch file")
		return
	}
	if ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rc, contentType, err := h.attachments.Open(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "file not found", "failed to fetch file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "file download interrupted", "name", name, "error", err)
	}
}
