// Package handlers provides HTTP handlers for the web API.
// This file contains the FacesHandler struct and constructor.
// Handler methods are organized in separate files:
//   - face_images.go: Store listing, reload and image serving (ListImages, Reload, Image)
//   - face_similar.go: Ranking as JSON and as an HTML grid (Similar, SimilarPage)
//   - face_compare.go: Pairwise comparison of two images (Compare)
package handlers

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/metrics"
)

// FaceStore is the part of the face cache the handlers need.
type FaceStore interface {
	facematch.RecordSource
	Has(key string) bool
	All() iter.Seq2[string, face.Record]
	Load() error
}

// FacesHandler handles face query endpoints
type FacesHandler struct {
	store   FaceStore
	match   config.MatchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	// mu is held for writing while the store reloads so that no ranking
	// computed against the old data lands in the fresh cache.
	mu      sync.RWMutex
	results *lru.Cache[string, []facematch.RankedMatch]
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(store FaceStore, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*FacesHandler, error) {
	results, err := lru.New[string, []facematch.RankedMatch](cfg.Web.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &FacesHandler{
		store:   store,
		match:   cfg.Match,
		metrics: m,
		logger:  logger,
		results: results,
	}, nil
}
