package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

// createTestMask builds a width x height mask from rectangles given as
// [x0, y0, x1, y1) tuples.
func createTestMask(t testing.TB, width, height int, rects ...[4]int) mask.Mask {
	t.Helper()
	m, err := mask.Empty(width, height)
	require.NoError(t, err)
	for _, r := range rects {
		for y := r[1]; y < r[3]; y++ {
			for x := r[0]; x < r[2]; x++ {
				m.Data[y*width+x] = 255
			}
		}
	}
	return m
}

func fromRows(t testing.TB, rows [][]uint8) mask.Mask {
	t.Helper()
	var data []uint8
	for _, r := range rows {
		data = append(data, r...)
	}
	m, err := mask.New(data, len(rows[0]), len(rows))
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	tr := New()
	require.NotNil(t, tr)
	assert.Equal(t, DefaultMaxRegionSize, tr.MaxRegionSize())

	custom := NewWithConfig(Config{MaxRegionSize: 10})
	assert.Equal(t, 10, custom.MaxRegionSize())
}

func TestEncodeRLEColumnMajor(t *testing.T) {
	m := fromRows(t, [][]uint8{
		{0, 0, 1, 1},
		{0, 0, 1, 1},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})

	rle, err := EncodeRLE(m)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 2, 2, 2, 2}, rle)
}

func TestEncodeRLEStartsWithBackground(t *testing.T) {
	m := fromRows(t, [][]uint8{
		{1},
		{0},
	})

	rle, err := EncodeRLE(m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1}, rle)
}

func TestEncodeRLERejectsBadDimensions(t *testing.T) {
	_, err := EncodeRLE(mask.Mask{Data: make([]uint8, 3), Width: 2, Height: 2})
	assert.ErrorIs(t, err, mask.ErrDimensionMismatch)
}

func TestGeneratePolygonsInvalidRLE(t *testing.T) {
	_, err := GeneratePolygons([]int{3, 2}, 2, 2)
	assert.ErrorIs(t, err, ErrInvalidRLE)

	_, err = GeneratePolygons([]int{1, -1, 4}, 2, 2)
	assert.ErrorIs(t, err, ErrInvalidRLE)
}

func TestTraceScenario(t *testing.T) {
	m := fromRows(t, [][]uint8{
		{0, 0, 1, 1},
		{0, 0, 1, 1},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, Polygon{{2, 0}, {2, 2}, {4, 2}, {4, 0}}, polys[0])
	assert.Equal(t, 4, polys[0].SignedArea())
	assert.Equal(t, "M2 0 L2 2 4 2 4 0", polys[0].Path())

	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 4, abs(AreaOfPath(paths[0])))
}

func TestTraceRectangle(t *testing.T) {
	m := createTestMask(t, 40, 30, [4]int{5, 7, 17, 17})

	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 12*10, abs(AreaOfPath(paths[0])))
}

func TestTraceTouchingBorder(t *testing.T) {
	m := createTestMask(t, 16, 12, [4]int{0, 0, 16, 12})

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, Polygon{{0, 0}, {0, 12}, {16, 12}, {16, 0}}, polys[0])
	assert.Equal(t, 16*12, polys[0].SignedArea())
}

func TestTraceEmptyMask(t *testing.T) {
	m := createTestMask(t, 20, 20)

	polys, err := New().Trace(m)
	require.NoError(t, err)
	assert.Empty(t, polys)

	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestTraceHoleHasOppositeWinding(t *testing.T) {
	// 20x20 square with a 6x6 hole
	m := createTestMask(t, 30, 30, [4]int{5, 5, 25, 25})
	for y := 12; y < 18; y++ {
		for x := 12; x < 18; x++ {
			m.Data[y*30+x] = 0
		}
	}

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 2)

	var outer, hole int
	for _, p := range polys {
		a := p.SignedArea()
		if a > 0 {
			outer = a
		} else {
			hole = a
		}
	}
	assert.Equal(t, 400, outer)
	assert.Equal(t, -36, hole)

	// the hole is big enough to survive filtering
	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestTraceSeparateComponents(t *testing.T) {
	m := createTestMask(t, 50, 20,
		[4]int{1, 1, 12, 12},
		[4]int{30, 2, 45, 18},
	)

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 2)
	for _, p := range polys {
		assert.Greater(t, p.SignedArea(), 0)
	}
}

func TestTraceDiagonalPixelsAreSeparate(t *testing.T) {
	m := fromRows(t, [][]uint8{
		{1, 0},
		{0, 1},
	})

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 2)
	for _, p := range polys {
		assert.Equal(t, 1, p.SignedArea())
		assert.Len(t, p, 4)
	}
}

func TestTraceKeepsLargestWhenAllSmall(t *testing.T) {
	m := createTestMask(t, 40, 40,
		[4]int{1, 1, 4, 4},    // 9
		[4]int{10, 10, 18, 18}, // 64
		[4]int{30, 30, 32, 32}, // 4
	)

	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 64, AreaOfPath(paths[0]))
}

func TestTraceDropsNoise(t *testing.T) {
	m := createTestMask(t, 60, 60,
		[4]int{5, 5, 35, 35},   // 900
		[4]int{50, 50, 53, 53}, // 9
	)

	paths, err := New().TraceToSVG(m)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 900, AreaOfPath(paths[0]))
}

func TestTraceIrregularShapeArea(t *testing.T) {
	// L shape: union of two rectangles
	m := createTestMask(t, 30, 30,
		[4]int{2, 2, 8, 20},
		[4]int{8, 14, 20, 20},
	)

	polys, err := New().Trace(m)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, m.ForegroundCount(), polys[0].SignedArea())
	assert.Len(t, polys[0], 6)
}

func BenchmarkTraceToSVG(b *testing.B) {
	m := createTestMask(b, 1024, 768,
		[4]int{100, 100, 600, 500},
		[4]int{700, 50, 900, 700},
	)
	tr := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.TraceToSVG(m)
	}
}
