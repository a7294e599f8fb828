//go:build dlib

package extractor

import (
	"context"
	"fmt"
	"image"
	"sync"

	goface "github.com/Kagami/go-face"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
)

// DlibExtractor runs dlib's HOG detector and ResNet descriptor in-process.
// The models directory must contain shape_predictor_5_face_landmarks.dat
// and dlib_face_recognition_resnet_model_v1.dat.
type DlibExtractor struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

// DlibAvailable reports whether this binary was built with dlib support.
const DlibAvailable = true

// NewDlibExtractor loads the dlib models from modelsDir.
func NewDlibExtractor(modelsDir string) (*DlibExtractor, error) {
	rec, err := goface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &DlibExtractor{rec: rec}, nil
}

// Extract implements Extractor.
func (d *DlibExtractor) Extract(ctx context.Context, img image.Image, upsample int) (face.Record, error) {
	scaled, factor, err := Upsample(img, upsample)
	if err != nil {
		return face.Record{}, err
	}
	data, err := EncodeJPEG(scaled)
	if err != nil {
		return face.Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return face.Record{}, err
	}

	// The recognizer is not safe for concurrent use.
	d.mu.Lock()
	faces, err := d.rec.Recognize(data)
	d.mu.Unlock()
	if err != nil {
		return face.Record{}, fmt.Errorf("face detection failed: %w", err)
	}

	bounds := img.Bounds()
	rec := face.Record{Width: bounds.Dx(), Height: bounds.Dy()}
	for _, f := range faces {
		rec.Embeddings = append(rec.Embeddings, face.Embedding(f.Descriptor[:]))
		r := face.Rect{
			X1: float64(f.Rectangle.Min.X),
			Y1: float64(f.Rectangle.Min.Y),
			X2: float64(f.Rectangle.Max.X),
			Y2: float64(f.Rectangle.Max.Y),
		}
		rec.Faces = append(rec.Faces, facematch.ClampRect(facematch.ScaleRect(r, factor), rec.Width, rec.Height))
	}
	return rec, nil
}

// Close frees the dlib models.
func (d *DlibExtractor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
