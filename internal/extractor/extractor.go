// Package extractor turns decoded images into face records by delegating
// detection and descriptor computation to a face model.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/face-finder/internal/face"
)

// maxUpsampledSide bounds the longest side of an upsampled image.
const maxUpsampledSide = 1 << 14

// Extractor detects faces in an image and computes one embedding per face.
// Implementations are idempotent and free of side effects.
//
// upsample doubles the image size that many times before detection so
// smaller faces are found. Boxes in the returned record are always in
// source-image coordinates.
type Extractor interface {
	Extract(ctx context.Context, img image.Image, upsample int) (face.Record, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(ctx context.Context, img image.Image, upsample int) (face.Record, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, img image.Image, upsample int) (face.Record, error) {
	return f(ctx, img, upsample)
}

// Upsample doubles img upsample times and returns the result together
// with the linear scale factor applied.
func Upsample(img image.Image, upsample int) (image.Image, float64, error) {
	if upsample < 0 {
		return nil, 0, fmt.Errorf("%w: upsample %d must be >= 0", face.ErrInvalidArgument, upsample)
	}
	if upsample == 0 {
		return img, 1, nil
	}

	bounds := img.Bounds()
	factor := 1 << upsample
	width := bounds.Dx() * factor
	height := bounds.Dy() * factor
	if upsample > 14 || width > maxUpsampledSide || height > maxUpsampledSide {
		return nil, 0, fmt.Errorf("%w: upsample %d makes a %dx%d image too large", face.ErrInvalidArgument, upsample, bounds.Dx(), bounds.Dy())
	}

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
	return scaled, float64(factor), nil
}

// EncodeJPEG encodes img for transport to a model.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
