package facematch

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/kozaktomas/face-finder/internal/face"
)

// memSource is a map-backed RecordSource.
type memSource map[string]face.Record

func (m memSource) Get(key string) (face.Record, error) {
	rec, ok := m[key]
	if !ok {
		return face.Record{}, fmt.Errorf("%w: %q", face.ErrNotFound, key)
	}
	return rec, nil
}

func (m memSource) Keys() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(m)))
}

func (m memSource) Len() int { return len(m) }

func single(vals ...float32) face.Record {
	return face.Record{Embeddings: []face.Embedding{vals}}
}

func TestRankScenario(t *testing.T) {
	src := memSource{
		"A": single(0.2, 0.5, 0.1),
		"B": single(0.2, 0.5, 0.1),
		"C": single(0, 0, 1),
	}

	matches, err := Rank(src, "A", Thresholds{Euclidean: 0.1, Cosine: 0.9}, 2)
	if err != nil {
		t.Fatalf("Rank(): %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1: %+v", len(matches), matches)
	}
	if matches[0].CandidateID != "B" || matches[0].Combined != 0 {
		t.Errorf("first match = %+v, want B with combined 0", matches[0])
	}
	if matches[0].QueryID != "A" {
		t.Errorf("QueryID = %q, want A", matches[0].QueryID)
	}
}

func TestRankOrdersAndTruncates(t *testing.T) {
	src := memSource{
		"q":     single(1, 0, 0),
		"far":   single(0.7, 0.7, 0),
		"near":  single(0.95, 0.1, 0),
		"exact": single(1, 0, 0),
		"group": {Embeddings: []face.Embedding{{0, 1, 0}, {0.9, 0.2, 0}}},
		"blank": {},
	}
	loose := Thresholds{Euclidean: 2, Cosine: 0}

	matches, err := Rank(src, "q", loose, 3)
	if err != nil {
		t.Fatalf("Rank(): %v", err)
	}
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = fmt.Sprintf("%s/%d", m.CandidateID, m.FaceIndex)
	}
	want := []string{"exact/0", "near/0", "group/1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ranking = %v, want %v", got, want)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Combined < matches[i-1].Combined {
			t.Errorf("not sorted at %d: %+v", i, matches)
		}
	}
}

func TestRankDeterministic(t *testing.T) {
	src := memSource{
		"q":  single(0.5, 0.5, 0.5),
		"t1": single(0.5, 0.5, 0.5),
		"t2": single(0.5, 0.5, 0.5),
		"t3": single(0.4, 0.6, 0.5),
		"t4": single(0.1, 0.9, 0.2),
	}

	first, err := Rank(src, "q", DefaultThresholds(), 4)
	if err != nil {
		t.Fatalf("Rank(): %v", err)
	}
	for range 5 {
		again, err := Rank(src, "q", DefaultThresholds(), 4)
		if err != nil {
			t.Fatalf("Rank(): %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("non-deterministic ranking:\n%+v\n%+v", first, again)
		}
	}
	// Exact ties keep key order.
	if first[0].CandidateID != "t1" || first[1].CandidateID != "t2" {
		t.Errorf("tie order = %s, %s; want t1, t2", first[0].CandidateID, first[1].CandidateID)
	}
}

func TestRankErrors(t *testing.T) {
	src := memSource{
		"q":     single(1, 0),
		"a":     single(0, 1),
		"b":     single(1, 1),
		"c":     single(1, 0.5),
		"multi": {Embeddings: []face.Embedding{{1, 0}, {0, 1}}},
		"none":  {},
	}
	tests := []struct {
		name    string
		query   string
		th      Thresholds
		topK    int
		wantErr error
	}{
		{"bad thresholds", "q", Thresholds{Euclidean: -1, Cosine: 0.5}, 1, face.ErrInvalidArgument},
		{"negative top_k", "q", DefaultThresholds(), -1, face.ErrInvalidArgument},
		{"missing query", "missing", DefaultThresholds(), 1, face.ErrNotFound},
		{"multi-face query", "multi", DefaultThresholds(), 1, face.ErrMultiFaceQuery},
		{"faceless query", "none", DefaultThresholds(), 1, face.ErrAmbiguousQuery},
		{"top_k overflow", "q", DefaultThresholds(), 6, face.ErrInsufficientCandidates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rank(src, tt.query, tt.th, tt.topK)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Rank() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRankTopKBoundary(t *testing.T) {
	src := memSource{
		"q": single(1, 0),
		"a": single(1, 0.1),
		"b": single(1, 0.2),
		"c": single(1, 0.3),
	}

	if _, err := Rank(src, "q", DefaultThresholds(), 4); !errors.Is(err, face.ErrInsufficientCandidates) {
		t.Errorf("top_k=4 error = %v, want ErrInsufficientCandidates", err)
	}
	matches, err := Rank(src, "q", DefaultThresholds(), 3)
	if err != nil {
		t.Fatalf("top_k=3: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("len = %d, want 3", len(matches))
	}
	matches, err = Rank(src, "q", DefaultThresholds(), 0)
	if err != nil || len(matches) != 0 {
		t.Errorf("top_k=0 = %v, %v; want empty, nil", matches, err)
	}
}

func TestRankPropagatesCandidateErrors(t *testing.T) {
	src := memSource{
		"q":   single(1, 0),
		"bad": single(0, 0),
	}
	if _, err := Rank(src, "q", DefaultThresholds(), 1); !errors.Is(err, face.ErrDegenerateVector) {
		t.Errorf("error = %v, want ErrDegenerateVector", err)
	}

	src["bad"] = single(1, 0, 0)
	if _, err := Rank(src, "q", DefaultThresholds(), 1); !errors.Is(err, face.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestRankNegativeCosineNamesCandidate(t *testing.T) {
	src := memSource{
		"me.jpg":       single(1, 0.2),
		"stranger.jpg": single(-1, 0.3),
	}

	_, err := Rank(src, "me.jpg", DefaultThresholds(), 5)
	if !errors.Is(err, face.ErrInvalidMetric) {
		t.Fatalf("error = %v, want ErrInvalidMetric", err)
	}
	for _, want := range []string{`"stranger.jpg"`, "2-d embeddings", "zero-centred model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestFindSimilarities(t *testing.T) {
	src := memSource{
		"q":     single(1, 0),
		"pair":  {Embeddings: []face.Embedding{{1, 0}, {0, 1}}},
		"blank": {},
	}

	got, err := FindSimilarities(src, "q")
	if err != nil {
		t.Fatalf("FindSimilarities(): %v", err)
	}
	if _, ok := got["q"]; ok {
		t.Errorf("query compared against itself")
	}
	if len(got["pair"]) != 2 {
		t.Errorf("pair metrics = %d, want 2", len(got["pair"]))
	}
	if m, ok := got["blank"]; !ok || len(m) != 0 {
		t.Errorf("blank metrics = %v, %v; want empty", m, ok)
	}

	src["multi"] = face.Record{Embeddings: []face.Embedding{{1, 0}, {0, 1}}}
	if _, err := FindSimilarities(src, "multi"); !errors.Is(err, face.ErrMultiFaceQuery) {
		t.Errorf("multi-face query error = %v, want ErrMultiFaceQuery", err)
	}
}
