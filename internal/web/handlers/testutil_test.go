package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facecache"
	"github.com/kozaktomas/face-finder/internal/logging"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Match.TopK = 2
	cfg.Web.ResultCacheSize = 16
	return cfg
}

// oneFace builds a record with a single face spanning the whole image
func oneFace(vals ...float32) face.Record {
	return face.Record{
		Embeddings: []face.Embedding{vals},
		Faces:      []face.Rect{{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		Width:      10,
		Height:     10,
	}
}

// newTestStore creates a store in a temp dir filled with records
func newTestStore(t *testing.T, records map[string]face.Record) *facecache.Store {
	t.Helper()
	store, err := facecache.Open(filepath.Join(t.TempDir(), "faces"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	for key, rec := range records {
		if err := store.Put(key, rec); err != nil {
			t.Fatalf("failed to put %s: %v", key, err)
		}
	}
	return store
}

// newTestHandler creates a FacesHandler backed by a real store
func newTestHandler(t *testing.T, store FaceStore) *FacesHandler {
	t.Helper()
	h, err := NewFacesHandler(store, testConfig(), nil, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}
	return h
}

// abcStore is the three image scenario: b is close to a, c is far away
func abcStore(t *testing.T) *facecache.Store {
	t.Helper()
	return newTestStore(t, map[string]face.Record{
		"a.jpg": oneFace(1, 0),
		"b.jpg": oneFace(0.9, 0.1),
		"c.jpg": oneFace(0, 1),
	})
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
