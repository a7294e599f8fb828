package facematch

import "github.com/kozaktomas/face-finder/internal/face"

// RelativeBox is a face box as fractions of the image size, in
// [x, y, w, h] form for CSS overlays.
type RelativeBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToRelative converts a pixel box to relative [x, y, w, h] coordinates.
// It returns false when the image size is unknown.
func ToRelative(r face.Rect, width, height int) (RelativeBox, bool) {
	if width <= 0 || height <= 0 {
		return RelativeBox{}, false
	}
	x1 := r.X1 / float64(width)
	y1 := r.Y1 / float64(height)
	x2 := r.X2 / float64(width)
	y2 := r.Y2 / float64(height)
	return RelativeBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}

// ScaleRect divides every coordinate by factor. Extractors use it to map
// boxes found on an upsampled image back to source coordinates.
func ScaleRect(r face.Rect, factor float64) face.Rect {
	if factor <= 0 {
		return r
	}
	return face.Rect{X1: r.X1 / factor, Y1: r.Y1 / factor, X2: r.X2 / factor, Y2: r.Y2 / factor}
}

// ClampRect clips r to the [0, width] x [0, height] image area.
func ClampRect(r face.Rect, width, height int) face.Rect {
	w, h := float64(width), float64(height)
	return face.Rect{
		X1: min(max(r.X1, 0), w),
		Y1: min(max(r.Y1, 0), h),
		X2: min(max(r.X2, 0), w),
		Y2: min(max(r.Y2, 0), h),
	}
}
