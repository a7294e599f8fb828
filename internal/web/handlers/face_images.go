package handlers

import (
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/imagefs"
)

// ImageSummary is one entry of the image listing
type ImageSummary struct {
	Key   string `json:"key"`
	Faces int    `json:"faces"`
	Dim   int    `json:"dim,omitempty"`
}

// ListImages returns every stored image with its face count, sorted by key
func (h *FacesHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	images := make([]ImageSummary, 0, h.store.Len())
	for key, rec := range h.store.All() {
		images = append(images, ImageSummary{Key: key, Faces: rec.FaceCount(), Dim: rec.Dim()})
	}
	respondJSON(w, http.StatusOK, images)
}

// Reload re-reads the store file and drops all cached rankings
func (h *FacesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.Load(); err != nil {
		h.logger.Error("reloading face store failed", "error", err)
		respondFaceError(w, err)
		return
	}
	h.results.Purge()
	h.metrics.SetEntries(h.store.Len())
	h.logger.Info("face store reloaded", "entries", h.store.Len())

	respondJSON(w, http.StatusOK, map[string]int{"entries": h.store.Len()})
}

// Image serves an image file. Only paths stored as keys are served.
func (h *FacesHandler) Image(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	key := imagefs.NormalizeKey(path)

	h.mu.RLock()
	known := h.store.Has(key)
	h.mu.RUnlock()
	if !known {
		h.logger.Debug("refusing unknown image", "path", sanitizeForLog(path))
		respondFaceError(w, fmt.Errorf("%w: image is not in the store", face.ErrNotFound))
		return
	}

	onDisk, err := imagefs.Locate(key)
	if err != nil {
		h.logger.Warn("stored image is missing on disk", "path", sanitizeForLog(key))
		respondFaceError(w, err)
		return
	}
	http.ServeFile(w, r, onDisk)
}
