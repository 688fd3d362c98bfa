package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/Rrens/kaif-chat/internal/api/response"
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AudioHandler serves uploaded voice messages
type AudioHandler struct {
	storage         domain.BlobStorage
	defaultMimeType string
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(storage domain.BlobStorage, defaultMimeType string) *AudioHandler {
	return &AudioHandler{storage: storage, defaultMimeType: defaultMimeType}
}

// Get streams the object stored under the wildcard key
func (h *AudioHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		response.NotFound(w, "audio not found")
		return
	}

	body, err := h.storage.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "audio not found")
			return
		}
		response.InternalError(w, "failed to open audio")
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = h.defaultMimeType
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Audio stream interrupted")
	}
}
