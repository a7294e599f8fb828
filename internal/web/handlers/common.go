package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-finder/internal/face"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps the face error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, face.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, face.ErrAmbiguousQuery),
		errors.Is(err, face.ErrMultiFaceQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, face.ErrInvalidArgument),
		errors.Is(err, face.ErrInsufficientCandidates):
		return http.StatusBadRequest
	case errors.Is(err, face.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondFaceError sends err with the status matching its kind.
func respondFaceError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
