package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guitaripod/pixie/internal/service"
)

// BlobGetter fetches stored bytes by key. *service.StorageService
// satisfies it.
type BlobGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// BlobHandler serves stored image bytes straight from object storage.
// It stays a raw chi handler: the response is a binary body with cache
// headers, not a typed JSON payload.
type BlobHandler struct {
	storage BlobGetter
}

// NewBlobHandler creates a new blob handler.
func NewBlobHandler(storage BlobGetter) *BlobHandler {
	return &BlobHandler{storage: storage}
}

// Serve handles GET /r2/{userID}/{imageID}.
func (h *BlobHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "userID") + "/" + chi.URLParam(r, "imageID")

	data, err := h.storage.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrBlobNotFound) {
			writeError(w, notFound(fmt.Sprintf("Image not found: %s", key)))
			return
		}
		writeError(w, internalError())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}
