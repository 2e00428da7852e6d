// Package geometry holds the coordinate bookkeeping that ties a source image,
// the segmentation model input, the uploaded mask raster and the on-screen
// canvas together.
//
// Every conversion is a pure scalar multiplication. Callers must track which
// space a point lives in; nothing here infers it.
package geometry

import (
	"fmt"
	"math"
)

const (
	// DefaultModelImageSize is the short side the model input is scaled to.
	DefaultModelImageSize = 500

	// DefaultUploadImageSize is the long side of the uploaded image, which
	// also fixes the mask raster resolution.
	DefaultUploadImageSize = 1024

	// DefaultMaxCanvasArea caps the displayed canvas at roughly 1.68M pixels.
	DefaultMaxCanvasArea = 1677721
)

// Space identifies a coordinate system.
type Space int

const (
	// NativeSpace is the source image's own pixel grid.
	NativeSpace Space = iota
	// ModelSpace is the grid of the resized model input.
	ModelSpace
	// UploadSpace is the grid of the uploaded image and of the masks the
	// model returns.
	UploadSpace
	// CanvasSpace is the displayed, possibly downscaled, canvas.
	CanvasSpace
)

func (s Space) String() string {
	switch s {
	case NativeSpace:
		return "native"
	case ModelSpace:
		return "model"
	case UploadSpace:
		return "upload"
	case CanvasSpace:
		return "canvas"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

// ModelScale carries the ratios between the native image and the model and
// upload grids.
type ModelScale struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Scale       float64 `json:"scale"`
	UploadScale float64 `json:"upload_scale"`
	MaskWidth   int     `json:"mask_width"`
	MaskHeight  int     `json:"mask_height"`
}

// NewModelScale derives the scale record for a width x height image. The
// short side is scaled to imageSize for the model and the long side to
// uploadSize for the upload.
func NewModelScale(width, height, imageSize, uploadSize int) (ModelScale, error) {
	if width <= 0 || height <= 0 {
		return ModelScale{}, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if imageSize <= 0 || uploadSize <= 0 {
		return ModelScale{}, fmt.Errorf("invalid target sizes %d/%d", imageSize, uploadSize)
	}

	var scale, uploadScale float64
	if height < width {
		scale = float64(imageSize) / float64(height)
		uploadScale = float64(uploadSize) / float64(width)
	} else {
		scale = float64(imageSize) / float64(width)
		uploadScale = float64(uploadSize) / float64(height)
	}

	return ModelScale{
		Width:       width,
		Height:      height,
		Scale:       scale,
		UploadScale: uploadScale,
		MaskWidth:   roundHalfUp(float64(width) * uploadScale),
		MaskHeight:  roundHalfUp(float64(height) * uploadScale),
	}, nil
}

// DefaultModelScale is NewModelScale with the default target sizes.
func DefaultModelScale(width, height int) (ModelScale, error) {
	return NewModelScale(width, height, DefaultModelImageSize, DefaultUploadImageSize)
}

// OnnxScale is the ratio between the model and upload grids.
func (s ModelScale) OnnxScale() float64 {
	if s.UploadScale == 0 {
		return 0
	}
	return s.Scale / s.UploadScale
}

// CanvasScale returns min(1, sqrt(maxArea/area)) for a width x height canvas.
// A non-positive maxArea disables the cap.
func CanvasScale(width, height, maxArea int) float64 {
	area := float64(width) * float64(height)
	if maxArea <= 0 || area <= 0 {
		return 1
	}
	return math.Min(1, math.Sqrt(float64(maxArea)/area))
}

// CanvasSize returns the displayed size of a width x height image under the
// area cap, along with the factor applied. Sizes are floored so the canvas
// never exceeds maxArea.
func CanvasSize(width, height, maxArea int) (w, h int, factor float64) {
	factor = CanvasScale(width, height, maxArea)
	return int(math.Floor(float64(width) * factor)), int(math.Floor(float64(height) * factor)), factor
}

// roundHalfUp rounds .5 toward positive infinity, matching how browsers
// round pixel sizes.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
