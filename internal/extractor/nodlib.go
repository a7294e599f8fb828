//go:build !dlib

package extractor

import (
	"context"
	"errors"
	"image"

	"github.com/kozaktomas/face-finder/internal/face"
)

// ErrDlibUnavailable is returned when the binary was built without the dlib tag.
var ErrDlibUnavailable = errors.New("dlib extractor not available: rebuild with -tags dlib")

// DlibAvailable reports whether this binary was built with dlib support.
const DlibAvailable = false

// DlibExtractor is a placeholder in builds without dlib.
type DlibExtractor struct{}

// NewDlibExtractor always fails in builds without dlib.
func NewDlibExtractor(string) (*DlibExtractor, error) {
	return nil, ErrDlibUnavailable
}

// Extract always fails in builds without dlib.
func (*DlibExtractor) Extract(context.Context, image.Image, int) (face.Record, error) {
	return face.Record{}, ErrDlibUnavailable
}

// Close is a no-op.
func (*DlibExtractor) Close() error { return nil }
