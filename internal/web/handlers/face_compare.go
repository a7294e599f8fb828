package handlers

import (
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/imagefs"
)

// CompareResponse holds the metrics of the query face against every face
// of the candidate image
type CompareResponse struct {
	Query     string             `json:"query"`
	Candidate string             `json:"candidate"`
	Metrics   []facematch.Metric `json:"metrics"`
	Match     bool               `json:"match"`
	FaceIndex int                `json:"face_index"`
}

// Compare compares two stored images using the configured thresholds
func (h *FacesHandler) Compare(w http.ResponseWriter, r *http.Request) {
	queryKey := r.URL.Query().Get("query")
	candidateKey := r.URL.Query().Get("candidate")
	if queryKey == "" || candidateKey == "" {
		respondFaceError(w, fmt.Errorf("%w: query and candidate are required", face.ErrInvalidArgument))
		return
	}
	queryKey, candidateKey = imagefs.NormalizeKey(queryKey), imagefs.NormalizeKey(candidateKey)

	h.mu.RLock()
	query, err := h.store.Get(queryKey)
	var candidate face.Record
	if err == nil {
		candidate, err = h.store.Get(candidateKey)
	}
	h.mu.RUnlock()
	if err != nil {
		respondFaceError(w, err)
		return
	}

	metrics, err := facematch.CompareRecords(query, candidate)
	if err != nil {
		respondFaceError(w, err)
		return
	}
	idx, ok, err := facematch.AnyMatch(query, candidate, h.match.Thresholds())
	if err != nil {
		respondFaceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CompareResponse{
		Query:     queryKey,
		Candidate: candidateKey,
		Metrics:   metrics,
		Match:     ok,
		FaceIndex: idx,
	})
}
