package cropper

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/menta2k/segment-cutout/pkg/geometry"
)

var (
	// ErrEmptyPath is returned when the path data contains no polygon with at
	// least three points.
	ErrEmptyPath = errors.New("cropper: path has no drawable polygon")

	// ErrEmptyCrop is returned when the path bounding box does not overlap
	// the image.
	ErrEmptyCrop = errors.New("cropper: crop region is empty")
)

// DefaultMaxStickerSize bounds the longest side of a sticker handed to the
// describer.
const DefaultMaxStickerSize = 720

// PathCropper cuts the region enclosed by traced paths out of a source image.
type PathCropper struct {
	config CropConfig
}

// CropConfig holds configuration for path cropping
type CropConfig struct {
	// MaxStickerSize is the longest side used by Downscale. Zero disables
	// downscaling.
	MaxStickerSize int
	// Filter is the resampling filter used when downscaling.
	Filter imaging.ResampleFilter
}

// New creates a new PathCropper with default configuration
func New() *PathCropper {
	return &PathCropper{
		config: CropConfig{
			MaxStickerSize: DefaultMaxStickerSize,
			Filter:         imaging.Lanczos,
		},
	}
}

// NewWithConfig creates a new PathCropper with custom configuration
func NewWithConfig(config CropConfig) *PathCropper {
	if config.MaxStickerSize < 0 {
		config.MaxStickerSize = 0
	}
	if config.Filter.Support == 0 && config.Filter.Kernel == nil {
		config.Filter = imaging.Lanczos
	}
	return &PathCropper{config: config}
}

// CropResult contains the result of a path crop
type CropResult struct {
	// Image is the cutout, transparent outside the polygons.
	Image *image.NRGBA
	// Bounds is the region of the source image the cutout covers.
	Bounds image.Rectangle
}

// CropByPath cuts paths out of img. The paths are in a space that is
// uploadScale times the native pixel grid, so every point is divided by
// uploadScale before drawing. Holes traced with opposite winding stay
// transparent.
func (c *PathCropper) CropByPath(img image.Image, paths []string, uploadScale float64) (CropResult, error) {
	if uploadScale <= 0 || math.IsNaN(uploadScale) || math.IsInf(uploadScale, 0) {
		return CropResult{}, fmt.Errorf("invalid upload scale %v", uploadScale)
	}

	inv := 1 / uploadScale
	subpaths, err := geometry.ParsePaths(paths, inv, inv)
	if err != nil {
		return CropResult{}, fmt.Errorf("failed to parse path: %w", err)
	}

	var points []geometry.PointF
	drawable := subpaths[:0]
	for _, sp := range subpaths {
		if len(sp) < 3 {
			continue
		}
		drawable = append(drawable, sp)
		points = append(points, sp...)
	}
	if len(drawable) == 0 {
		return CropResult{}, ErrEmptyPath
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	box := geometry.BoundingBox(points)
	rect := image.Rect(
		int(math.Floor(box.MinX)), int(math.Floor(box.MinY)),
		int(math.Ceil(box.MaxX)), int(math.Ceil(box.MaxY)),
	).Intersect(image.Rect(0, 0, w, h))
	if rect.Empty() {
		return CropResult{}, ErrEmptyCrop
	}

	clip := rasterize(drawable, w, h)

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.DrawMask(canvas, canvas.Bounds(), img, bounds.Min, clip, image.Point{}, draw.Over)

	return CropResult{
		Image:  imaging.Crop(canvas, rect),
		Bounds: rect.Add(bounds.Min),
	}, nil
}

// Downscale shrinks img so neither side exceeds MaxStickerSize. Smaller
// images are returned as is.
func (c *PathCropper) Downscale(img image.Image) image.Image {
	return ResizeToMaxSize(img, c.config.MaxStickerSize, c.config.Filter)
}

// ResizeToMaxSize fits img inside maxSize x maxSize keeping its aspect ratio.
// It never upscales and a non-positive maxSize is a no-op.
func ResizeToMaxSize(img image.Image, maxSize int, filter imaging.ResampleFilter) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}

	f := math.Min(float64(maxSize)/float64(w), float64(maxSize)/float64(h))
	nw := max(1, int(math.Floor(float64(w)*f+0.5)))
	nh := max(1, int(math.Floor(float64(h)*f+0.5)))
	return imaging.Resize(img, nw, nh, filter)
}

// rasterize fills every polygon into an alpha clip. Overlapping polygons with
// opposite winding cancel out.
func rasterize(polys [][]geometry.PointF, w, h int) *image.Alpha {
	z := vector.NewRasterizer(w, h)
	for _, poly := range polys {
		z.MoveTo(float32(poly[0].X), float32(poly[0].Y))
		for _, p := range poly[1:] {
			z.LineTo(float32(p.X), float32(p.Y))
		}
		z.ClosePath()
	}

	clip := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(clip, clip.Bounds(), image.Opaque, image.Point{})
	return clip
}
