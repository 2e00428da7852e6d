package tracer

import (
	"errors"
	"fmt"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

// ErrInvalidRLE is returned when run lengths do not describe a width x height
// raster.
var ErrInvalidRLE = errors.New("tracer: invalid run-length encoding")

// EncodeRLE run-length encodes a mask in column-major order: the row index
// advances fastest within each column. Runs alternate between background and
// foreground, starting with background, so a mask whose first pixel is
// foreground begins with a zero-length run.
func EncodeRLE(m mask.Mask) ([]int, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var runs []int
	count := 0
	filled := false
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			fg := m.Data[y*m.Width+x] > 0
			if fg != filled {
				runs = append(runs, count)
				filled = fg
				count = 1
			} else {
				count++
			}
		}
	}
	if count > 0 {
		runs = append(runs, count)
	}
	return runs, nil
}

// interval is a half-open foreground span [y0, y1) inside one column.
type interval struct {
	y0, y1 int
}

// columnIntervals splits column-major runs into per-column foreground spans.
func columnIntervals(rle []int, width, height int) ([][]interval, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d raster", ErrInvalidRLE, width, height)
	}

	total := width * height
	cols := make([][]interval, width)
	pos := 0
	fg := false

	for i, n := range rle {
		if n < 0 {
			return nil, fmt.Errorf("%w: negative run %d at %d", ErrInvalidRLE, n, i)
		}
		if pos+n > total {
			return nil, fmt.Errorf("%w: runs exceed %d pixels", ErrInvalidRLE, total)
		}
		if fg {
			for start, end := pos, pos+n; start < end; {
				x := start / height
				y0 := start % height
				y1 := min(height, y0+end-start)
				cols[x] = appendInterval(cols[x], interval{y0, y1})
				start += y1 - y0
			}
		}
		pos += n
		fg = !fg
	}

	if pos != total {
		return nil, fmt.Errorf("%w: runs cover %d of %d pixels", ErrInvalidRLE, pos, total)
	}
	return cols, nil
}

// appendInterval merges touching spans, which only appear when the encoding
// contains empty background runs.
func appendInterval(col []interval, iv interval) []interval {
	if n := len(col); n > 0 && col[n-1].y1 == iv.y0 {
		col[n-1].y1 = iv.y1
		return col
	}
	return append(col, iv)
}
