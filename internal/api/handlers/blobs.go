// blobs.go — GET /blobs/{path}: выдача объектов локального хранилища.
// Публичный endpoint, аналог публичных URL bucket'а.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/docukeeper/internal/api/errors"
	"github.com/bigkaa/docukeeper/internal/storage"
)

// BlobOpener открывает объект локального хранилища.
type BlobOpener interface {
	Open(path string) (*os.File, error)
}

// BlobHandler — выдача объектов из локального хранилища.
type BlobHandler struct {
	store  BlobOpener
	logger *slog.Logger
}

// NewBlobHandler создаёт BlobHandler.
func NewBlobHandler(store BlobOpener, logger *slog.Logger) *BlobHandler {
	return &BlobHandler{
		store:  store,
		logger: logger.With(slog.String("component", "blob_handler")),
	}
}

// ServeBlob отдаёт объект с поддержкой Range и If-Modified-Since.
func (h *BlobHandler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	objectPath := chi.URLParam(r, "*")

	f, err := h.store.Open(objectPath)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidPath):
			apierrors.NotFound(w, "Объект не найден")
		default:
			h.logger.Error("Ошибка открытия объекта",
				slog.String("path", objectPath),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка чтения объекта")
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		apierrors.NotFound(w, "Объект не найден")
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(objectPath), info.ModTime(), f)
}
