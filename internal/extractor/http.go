package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// HTTPExtractor calls an InsightFace embedding server's /embed/face endpoint.
type HTTPExtractor struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	minScore float64
}

// HTTPOption configures an HTTPExtractor.
type HTTPOption func(*HTTPExtractor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPExtractor) { e.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPExtractor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(rps float64) HTTPOption {
	return func(e *HTTPExtractor) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMinScore drops detections whose score is below s.
func WithMinScore(s float64) HTTPOption {
	return func(e *HTTPExtractor) { e.minScore = s }
}

// NewHTTPExtractor creates a client for the embedding server at baseURL.
func NewHTTPExtractor(baseURL string, opts ...HTTPOption) *HTTPExtractor {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	e := &HTTPExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FaceDetection is a single detected face as reported by the server.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body returned by /embed/face.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract implements Extractor.
func (e *HTTPExtractor) Extract(ctx context.Context, img image.Image, upsample int) (face.Record, error) {
	scaled, factor, err := Upsample(img, upsample)
	if err != nil {
		return face.Record{}, err
	}
	data, err := EncodeJPEG(scaled)
	if err != nil {
		return face.Record{}, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return face.Record{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := e.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return face.Record{}, err
	}

	bounds := img.Bounds()
	return e.toRecord(resp, factor, bounds.Dx(), bounds.Dy())
}

func (e *HTTPExtractor) toRecord(resp *FaceResponse, factor float64, width, height int) (face.Record, error) {
	faces := slices.Clone(resp.Faces)
	slices.SortStableFunc(faces, func(a, b FaceDetection) int { return a.FaceIndex - b.FaceIndex })

	rec := face.Record{Width: width, Height: height}
	for _, f := range faces {
		if f.DetScore < e.minScore {
			continue
		}
		if len(f.Embedding) == 0 {
			return face.Record{}, fmt.Errorf("empty embedding returned for face %d", f.FaceIndex)
		}
		rec.Embeddings = append(rec.Embeddings, face.Embedding(f.Embedding))
		if len(f.BBox) == 4 {
			r := face.Rect{X1: f.BBox[0], Y1: f.BBox[1], X2: f.BBox[2], Y2: f.BBox[3]}
			rec.Faces = append(rec.Faces, facematch.ClampRect(facematch.ScaleRect(r, factor), width, height))
		}
	}
	// Boxes are only meaningful if every face has one.
	if len(rec.Faces) != len(rec.Embeddings) {
		rec.Faces = nil
	}
	return rec, nil
}

// ComputeFaceEmbeddings posts JPEG data to the server and returns the raw response.
func (e *HTTPExtractor) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := e.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// postMultipartImage posts imageData as the "file" form field.
func (e *HTTPExtractor) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// APIError is returned when the embedding server answers with a non-200 status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsAPIError reports whether err carries an APIError with the given status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
