// Package face holds the data model shared by the cache, the matching
// engine and the extractors.
package face

// Embedding is a fixed-length face descriptor produced by an extractor.
// Its length depends on the model (128 for dlib, 512 for InsightFace).
type Embedding []float32

// Rect is a face bounding box in source-image pixel coordinates.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Record is the extraction result for one image.
// Faces[i], when present, is the bounding box of Embeddings[i].
// A record without embeddings marks an image that was processed but
// yielded no usable face.
type Record struct {
	Embeddings []Embedding `json:"embeddings"`
	Faces      []Rect      `json:"faces,omitempty"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
}

// FaceCount returns the number of detected faces.
func (r Record) FaceCount() int {
	return len(r.Embeddings)
}

// Dim returns the embedding dimension, or 0 for an empty record.
func (r Record) Dim() int {
	if len(r.Embeddings) == 0 {
		return 0
	}
	return len(r.Embeddings[0])
}

// Box returns the bounding box of face i, if known.
func (r Record) Box(i int) (Rect, bool) {
	if i < 0 || i >= len(r.Faces) {
		return Rect{}, false
	}
	return r.Faces[i], true
}

// Clone returns a deep copy so the caller can't mutate shared slices.
func (r Record) Clone() Record {
	out := Record{Width: r.Width, Height: r.Height}
	if r.Embeddings != nil {
		out.Embeddings = make([]Embedding, len(r.Embeddings))
		for i, e := range r.Embeddings {
			out.Embeddings[i] = append(Embedding(nil), e...)
		}
	}
	if r.Faces != nil {
		out.Faces = append([]Rect(nil), r.Faces...)
	}
	return out
}
