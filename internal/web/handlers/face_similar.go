package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/imagefs"
	"github.com/kozaktomas/face-finder/internal/render"
)

// SimilarResponse is the JSON answer of the similar endpoint
type SimilarResponse struct {
	Query      string                  `json:"query"`
	TopK       int                     `json:"top_k"`
	Thresholds facematch.Thresholds    `json:"thresholds"`
	Matches    []facematch.RankedMatch `json:"matches"`
}

type similarParams struct {
	query      string
	topK       int
	thresholds facematch.Thresholds
}

func (p similarParams) cacheKey() string {
	return fmt.Sprintf("%s\x00%d\x00%g\x00%g", p.query, p.topK, p.thresholds.Euclidean, p.thresholds.Cosine)
}

// parseSimilarParams reads query, top_k, euclidean and cosine, falling back
// to the configured values for the optional ones.
func (h *FacesHandler) parseSimilarParams(r *http.Request) (similarParams, error) {
	q := r.URL.Query()
	p := similarParams{
		query:      q.Get("query"),
		topK:       h.match.TopK,
		thresholds: h.match.Thresholds(),
	}
	if p.query == "" {
		return p, fmt.Errorf("%w: query is required", face.ErrInvalidArgument)
	}
	p.query = imagefs.NormalizeKey(p.query)

	if s := q.Get("top_k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: invalid top_k %q", face.ErrInvalidArgument, s)
		}
		p.topK = n
	}
	for name, dst := range map[string]*float64{
		"euclidean": &p.thresholds.Euclidean,
		"cosine":    &p.thresholds.Cosine,
	} {
		s := q.Get(name)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("%w: invalid %s %q", face.ErrInvalidArgument, name, s)
		}
		*dst = f
	}
	return p, nil
}

// rank answers from the result cache or runs the ranking.
// The caller must hold h.mu for reading.
func (h *FacesHandler) rank(p similarParams) ([]facematch.RankedMatch, error) {
	key := p.cacheKey()
	if cached, ok := h.results.Get(key); ok {
		h.metrics.ObserveCache(true)
		return cached, nil
	}
	h.metrics.ObserveCache(false)

	start := time.Now()
	matches, err := facematch.Rank(h.store, p.query, p.thresholds, p.topK)
	h.metrics.ObserveRank(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []facematch.RankedMatch{}
	}
	h.results.Add(key, matches)
	return matches, nil
}

// Similar ranks the stored images against the single face of the query image
func (h *FacesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	p, err := h.parseSimilarParams(r)
	if err != nil {
		respondFaceError(w, err)
		return
	}

	h.mu.RLock()
	matches, err := h.rank(p)
	h.mu.RUnlock()
	if err != nil {
		h.logger.Warn("ranking failed", "query", sanitizeForLog(p.query), "error", err)
		respondFaceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SimilarResponse{
		Query:      p.query,
		TopK:       p.topK,
		Thresholds: p.thresholds,
		Matches:    matches,
	})
}

// SimilarPage renders the ranking as an HTML image grid with the matched
// faces outlined.
func (h *FacesHandler) SimilarPage(w http.ResponseWriter, r *http.Request) {
	p, err := h.parseSimilarParams(r)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	report, err := h.buildReport(p)
	if err != nil {
		h.logger.Warn("building report failed", "query", sanitizeForLog(p.query), "error", err)
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	var buf bytes.Buffer
	if err := report.WriteHTML(&buf); err != nil {
		h.logger.Error("rendering report failed", "error", err)
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *FacesHandler) buildReport(p similarParams) (*render.Report, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matches, err := h.rank(p)
	if err != nil {
		return nil, err
	}
	query, err := h.store.Get(p.query)
	if err != nil {
		return nil, err
	}

	b := render.NewBuilder(p.query,
		render.WithTitle("Faces similar to "+filepath.Base(p.query)),
		render.WithImageURL(imageURL),
	).QueryFace(query)
	for _, m := range matches {
		rec, err := h.store.Get(m.CandidateID)
		if err != nil {
			return nil, err
		}
		b.AddFace(m.CandidateID, m.Combined, rec, m.FaceIndex)
	}
	return b.Build()
}

func imageURL(path string) string {
	return "/image?path=" + url.QueryEscape(path)
}
