package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrDimensionMismatch is returned when a buffer length disagrees with its
	// declared dimensions, or when two masks of different length are compared.
	ErrDimensionMismatch = errors.New("mask: dimension mismatch")

	// ErrInvalidDimensions is returned for non-positive widths or heights.
	ErrInvalidDimensions = errors.New("mask: invalid dimensions")
)

// DefaultPreviewColor is the overlay color used for hover previews.
var DefaultPreviewColor = color.NRGBA{R: 0, G: 114, B: 189, A: 255}

// Mask is a row-major per-pixel score buffer. A pixel is foreground iff its
// value is greater than zero.
type Mask struct {
	Data   []uint8
	Width  int
	Height int
}

// New creates a mask that owns a copy of data.
func New(data []uint8, width, height int) (Mask, error) {
	m := Mask{Width: width, Height: height}
	if err := checkDims(len(data), width, height); err != nil {
		return Mask{}, err
	}
	m.Data = make([]uint8, len(data))
	copy(m.Data, data)
	return m, nil
}

// Empty returns an all-background mask of the given size.
func Empty(width, height int) (Mask, error) {
	if width <= 0 || height <= 0 {
		return Mask{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return Mask{Data: make([]uint8, width*height), Width: width, Height: height}, nil
}

// FromFloat32 converts raw model scores (logits) into a mask. Scores above
// zero become 255, everything else 0.
func FromFloat32(scores []float32, width, height int) (Mask, error) {
	if err := checkDims(len(scores), width, height); err != nil {
		return Mask{}, err
	}
	data := make([]uint8, len(scores))
	for i, s := range scores {
		if s > 0 {
			data[i] = 255
		}
	}
	return Mask{Data: data, Width: width, Height: height}, nil
}

// FromImage builds a mask from the gray level of an image. Fully transparent
// pixels are background.
func FromImage(img image.Image) Mask {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(x+bounds.Min.X, y+bounds.Min.Y)
			if _, _, _, a := c.RGBA(); a == 0 {
				continue
			}
			g := color.GrayModel.Convert(c).(color.Gray)
			data[y*w+x] = g.Y
		}
	}

	return Mask{Data: data, Width: w, Height: h}
}

func checkDims(n, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if n != width*height {
		return fmt.Errorf("%w: buffer has %d values, %dx%d needs %d",
			ErrDimensionMismatch, n, width, height, width*height)
	}
	return nil
}

// Validate checks the buffer against the declared dimensions.
func (m Mask) Validate() error {
	return checkDims(len(m.Data), m.Width, m.Height)
}

// Len returns the number of pixels in the buffer.
func (m Mask) Len() int {
	return len(m.Data)
}

// IsForeground reports whether the pixel at buffer index i is foreground.
func (m Mask) IsForeground(i int) bool {
	return m.Data[i] > 0
}

// At reports whether pixel (x, y) is foreground. Out of range is background.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x] > 0
}

// ForegroundCount returns the number of foreground pixels.
func (m Mask) ForegroundCount() int {
	n := 0
	for _, v := range m.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m Mask) Clone() Mask {
	data := make([]uint8, len(m.Data))
	copy(data, m.Data)
	return Mask{Data: data, Width: m.Width, Height: m.Height}
}

// ToImage renders the mask as a transparent image with foreground pixels
// painted in c.
func (m Mask) ToImage(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Data {
		if v == 0 {
			continue
		}
		p := i * 4
		img.Pix[p+0] = c.R
		img.Pix[p+1] = c.G
		img.Pix[p+2] = c.B
		img.Pix[p+3] = c.A
	}
	return img
}

// IoU computes the intersection-over-union of the binarized masks. Masks of
// different length cannot be compared. Two masks without any foreground are
// considered identical.
func IoU(a, b Mask) (float64, error) {
	if len(a.Data) != len(b.Data) {
		return 0, fmt.Errorf("%w: %d vs %d pixels", ErrDimensionMismatch, len(a.Data), len(b.Data))
	}

	var intersection, union int
	for i := range a.Data {
		fa := a.Data[i] > 0
		fb := b.Data[i] > 0
		if fa && fb {
			intersection++
		}
		if fa || fb {
			union++
		}
	}

	if union == 0 {
		return 1, nil
	}
	return float64(intersection) / float64(union), nil
}
