package facematch

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/kozaktomas/face-finder/internal/face"
)

// RecordSource is the read side of a face store.
type RecordSource interface {
	Get(key string) (face.Record, error)
	Keys() iter.Seq[string]
	Len() int
}

// RankedMatch is one candidate face that matched the query.
type RankedMatch struct {
	QueryID     string `json:"query"`
	CandidateID string `json:"candidate"`
	FaceIndex   int    `json:"face_index"`
	Metric
}

// Rank returns up to topK candidate faces matching the single face of the
// query image, most similar first. Ties keep key order, then face order.
//
// topK greater than the number of other images fails with
// ErrInsufficientCandidates instead of silently returning fewer.
func Rank(src RecordSource, query string, t Thresholds, topK int) ([]RankedMatch, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k %d must be >= 0", face.ErrInvalidArgument, topK)
	}

	q, err := queryFor(src, query)
	if err != nil {
		return nil, err
	}

	if available := src.Len() - 1; topK > available {
		return nil, fmt.Errorf("%w: top_k %d but only %d other images", face.ErrInsufficientCandidates, topK, available)
	}

	var matches []RankedMatch
	err = eachCandidate(src, query, q, func(key string, idx int, m Metric) {
		if IsMatch(m, t) {
			matches = append(matches, RankedMatch{QueryID: query, CandidateID: key, FaceIndex: idx, Metric: m})
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b RankedMatch) int {
		return cmp.Compare(a.Combined, b.Combined)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// FindSimilarities computes metrics for every face of every other image
// without filtering. Images without faces map to an empty slice.
func FindSimilarities(src RecordSource, query string) (map[string][]Metric, error) {
	q, err := queryFor(src, query)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Metric)
	err = eachCandidate(src, query, q, func(key string, _ int, m Metric) {
		out[key] = append(out[key], m)
	})
	if err != nil {
		return nil, err
	}
	for key := range src.Keys() {
		if _, ok := out[key]; !ok && key != query {
			out[key] = []Metric{}
		}
	}
	return out, nil
}

func queryFor(src RecordSource, query string) (face.Embedding, error) {
	rec, err := src.Get(query)
	if err != nil {
		return nil, err
	}
	q, err := QueryEmbedding(rec)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	return q, nil
}

func eachCandidate(src RecordSource, query string, q face.Embedding, fn func(key string, idx int, m Metric)) error {
	for key := range src.Keys() {
		if key == query {
			continue
		}
		rec, err := src.Get(key)
		if err != nil {
			return fmt.Errorf("candidate %q: %w", key, err)
		}
		metrics, err := CompareOneToMany(q, rec.Embeddings)
		if errors.Is(err, face.ErrInvalidMetric) {
			return fmt.Errorf("candidate %q (%d-d embeddings): cosine outside [0,1], "+
				"the cache was likely built with a zero-centred model: %w", key, len(q), err)
		}
		if err != nil {
			return fmt.Errorf("candidate %q: %w", key, err)
		}
		for i, m := range metrics {
			fn(key, i, m)
		}
	}
	return nil
}
