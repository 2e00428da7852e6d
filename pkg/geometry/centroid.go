package geometry

import (
	"image"
	"math"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

// MaskCentroid returns the unweighted centre of mass of the foreground
// pixels, rounded half up. A mask without foreground yields the raster
// centre (Width/2, Height/2) using integer division, so an odd dimension
// rounds down: an empty 5x3 mask gives (2, 1).
func MaskCentroid(m mask.Mask) image.Point {
	center := image.Point{X: m.Width / 2, Y: m.Height / 2}
	if m.Width <= 0 || m.Height <= 0 {
		return center
	}

	var sumX, sumY, count int
	for y := 0; y < m.Height; y++ {
		row := y * m.Width
		for x := 0; x < m.Width; x++ {
			i := row + x
			if i < len(m.Data) && m.Data[i] > 0 {
				sumX += x
				sumY += y
				count++
			}
		}
	}
	if count == 0 {
		return center
	}

	return image.Point{
		X: int(math.Floor(float64(sumX)/float64(count) + 0.5)),
		Y: int(math.Floor(float64(sumY)/float64(count) + 0.5)),
	}
}
