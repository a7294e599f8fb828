// Package facematch compares face embeddings and ranks stored images by
// similarity to a query image.
package facematch

import (
	"fmt"
	"math"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-finder/internal/face"
)

// Default thresholds used when none are configured.
const (
	DefaultEuclideanThreshold = 0.6
	DefaultCosineThreshold    = 0.92
)

// cosineTolerance is how far outside [0, 1] a cosine may land from
// floating-point rounding before it counts as out of domain.
const cosineTolerance = 1e-6

// Metric is the similarity between a query and a candidate embedding.
// Lower Combined means more similar; 0 means identical.
type Metric struct {
	Euclidean float64 `json:"euclidean_distance"`
	Cosine    float64 `json:"cosine_similarity"`
	Combined  float64 `json:"combined_score"`
}

// NewMetric validates the two distances and derives the combined score.
func NewMetric(euclidean, cosine float64) (Metric, error) {
	if math.IsNaN(euclidean) || math.IsInf(euclidean, 0) || euclidean < 0 {
		return Metric{}, fmt.Errorf("%w: euclidean distance %v", face.ErrInvalidMetric, euclidean)
	}
	if math.IsNaN(cosine) || cosine < 0 || cosine > 1 {
		return Metric{}, fmt.Errorf("%w: cosine similarity %v outside [0,1]", face.ErrInvalidMetric, cosine)
	}
	return Metric{
		Euclidean: euclidean,
		Cosine:    cosine,
		Combined:  euclidean + math.Abs(cosine-1),
	}, nil
}

// Thresholds decide whether a metric counts as a match.
type Thresholds struct {
	Euclidean float64 `json:"euclidean" yaml:"euclidean"`
	Cosine    float64 `json:"cosine" yaml:"cosine"`
}

// DefaultThresholds returns the stock euclidean/cosine cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Euclidean: DefaultEuclideanThreshold, Cosine: DefaultCosineThreshold}
}

// Validate checks that euclidean is a finite non-negative number and
// cosine lies in [0, 1].
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Euclidean) || math.IsInf(t.Euclidean, 0) || t.Euclidean < 0 {
		return fmt.Errorf("%w: euclidean threshold %v must be >= 0", face.ErrInvalidArgument, t.Euclidean)
	}
	if math.IsNaN(t.Cosine) || t.Cosine < 0 || t.Cosine > 1 {
		return fmt.Errorf("%w: cosine threshold %v must be within [0,1]", face.ErrInvalidArgument, t.Cosine)
	}
	return nil
}

// IsMatch reports whether either signal clears its threshold.
func IsMatch(m Metric, t Thresholds) bool {
	return m.Euclidean <= t.Euclidean || m.Cosine >= t.Cosine
}

// Compare computes the euclidean distance and cosine similarity between
// two embeddings of equal, non-zero length.
func Compare(query, candidate face.Embedding) (Metric, error) {
	if len(query) == 0 || len(candidate) == 0 {
		return Metric{}, fmt.Errorf("%w: empty embedding", face.ErrInvalidArgument)
	}
	if len(query) != len(candidate) {
		return Metric{}, fmt.Errorf("%w: dimension mismatch (%d vs %d)", face.ErrInvalidArgument, len(query), len(candidate))
	}

	var dot, normQ, normC float64
	for i := range query {
		q, c := float64(query[i]), float64(candidate[i])
		if math.IsNaN(q) || math.IsNaN(c) || math.IsInf(q, 0) || math.IsInf(c, 0) {
			return Metric{}, fmt.Errorf("%w: non-finite component at %d", face.ErrDegenerateVector, i)
		}
		dot += q * c
		normQ += q * q
		normC += c * c
	}
	if normQ == 0 || normC == 0 {
		return Metric{}, fmt.Errorf("%w: zero-norm embedding", face.ErrDegenerateVector)
	}

	cosine := dot / math.Sqrt(normQ*normC)
	switch {
	case cosine > 1 && cosine <= 1+cosineTolerance:
		cosine = 1
	case cosine < 0 && cosine >= -cosineTolerance:
		cosine = 0
	}

	euclidean := float64(hnsw.EuclideanDistance(query, candidate))
	return NewMetric(euclidean, cosine)
}

// CompareOneToMany compares query against each candidate in order.
// The first failing candidate aborts the whole call.
func CompareOneToMany(query face.Embedding, candidates []face.Embedding) ([]Metric, error) {
	out := make([]Metric, 0, len(candidates))
	for i, c := range candidates {
		m, err := Compare(query, c)
		if err != nil {
			return nil, fmt.Errorf("candidate face %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// QueryEmbedding returns the single embedding of a query record.
func QueryEmbedding(rec face.Record) (face.Embedding, error) {
	switch n := rec.FaceCount(); {
	case n == 0:
		return nil, face.ErrAmbiguousQuery
	case n > 1:
		return nil, fmt.Errorf("%w: found %d faces", face.ErrMultiFaceQuery, n)
	}
	return rec.Embeddings[0], nil
}

// CompareRecords compares the single face of query against every face of
// candidate.
func CompareRecords(query, candidate face.Record) ([]Metric, error) {
	q, err := QueryEmbedding(query)
	if err != nil {
		return nil, err
	}
	return CompareOneToMany(q, candidate.Embeddings)
}

// AnyMatch returns the index of the first candidate face that matches the
// query face under t.
func AnyMatch(query, candidate face.Record, t Thresholds) (int, bool, error) {
	if err := t.Validate(); err != nil {
		return -1, false, err
	}
	metrics, err := CompareRecords(query, candidate)
	if err != nil {
		return -1, false, err
	}
	for i, m := range metrics {
		if IsMatch(m, t) {
			return i, true, nil
		}
	}
	return -1, false, nil
}
