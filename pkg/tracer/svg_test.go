package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAreaUnderLine(t *testing.T) {
	tests := []struct {
		name           string
		x0, y0, x1, y1 int
		expected       int
	}{
		{"vertical", 3, 0, 3, 10, 0},
		{"horizontal right", 0, 4, 5, 4, 20},
		{"horizontal left", 5, 4, 0, 4, -20},
		{"sloped", 0, 2, 4, 5, 4*2 + 6},
		{"truncated triangle", 0, 0, 3, 1, 1},
		{"truncated negative triangle", 3, 0, 0, 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AreaUnderLine(tt.x0, tt.y0, tt.x1, tt.y1))
		})
	}
}

func TestAreaOfPath(t *testing.T) {
	assert.Equal(t, 4, AreaOfPath("M2 0 L2 2 4 2 4 0"))
	assert.Equal(t, -4, AreaOfPath("M2 0 L4 0 4 2 2 2"))
	// spaced commands are accepted too
	assert.Equal(t, 4, AreaOfPath("M 2 0 L 2 2 4 2 4 0"))
	// triangle with truncated half pixels
	assert.Equal(t, 2, AreaOfPath("M0 0 L0 1 3 1"))
}

func TestAreaOfPathMalformed(t *testing.T) {
	assert.Equal(t, 0, AreaOfPath(""))
	assert.Equal(t, 0, AreaOfPath("M1 2"))
	assert.Equal(t, 0, AreaOfPath("M1 2 L3"))
	assert.Equal(t, 0, AreaOfPath("M1 2 L3 x 4 5"))
}

func TestParsePath(t *testing.T) {
	poly, ok := ParsePath("M2 0 L2 2 4 2 4 0")
	assert.True(t, ok)
	assert.Equal(t, Polygon{{2, 0}, {2, 2}, {4, 2}, {4, 0}}, poly)

	_, ok = ParsePath("M2 0 L2")
	assert.False(t, ok)
}

func TestFilterSmallRegionsEmpty(t *testing.T) {
	assert.Empty(t, FilterSmallRegions(nil, 100))
	assert.Empty(t, FilterSmallRegions([]string{}, 100))
}

func TestFilterSmallRegionsThresholdIsInclusive(t *testing.T) {
	exact := Polygon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}.Path()  // 100
	bigger := Polygon{{0, 0}, {0, 11}, {10, 11}, {10, 0}}.Path() // 110

	out := FilterSmallRegions([]string{exact, bigger}, 100)
	assert.Equal(t, []string{bigger}, out)
}

func TestFilterSmallRegionsKeepsHoles(t *testing.T) {
	outer := Polygon{{0, 0}, {0, 40}, {40, 40}, {40, 0}}.Path()
	hole := Polygon{{10, 10}, {30, 10}, {30, 30}, {10, 30}}.Path()

	out := FilterSmallRegions([]string{outer, hole}, 100)
	assert.Equal(t, []string{outer, hole}, out)
	assert.Less(t, AreaOfPath(hole), 0)
}

func TestFilterSmallRegionsFallback(t *testing.T) {
	a := Polygon{{0, 0}, {0, 3}, {3, 3}, {3, 0}}.Path() // 9
	b := Polygon{{0, 0}, {0, 8}, {8, 8}, {8, 0}}.Path() // 64
	c := Polygon{{0, 0}, {0, 2}, {2, 2}, {2, 0}}.Path() // 4

	out := FilterSmallRegions([]string{a, b, c}, 100)
	assert.Equal(t, []string{b}, out)
}

func TestPolygonPath(t *testing.T) {
	assert.Equal(t, "", Polygon(nil).Path())
	assert.Equal(t, "M1 2", Polygon{{1, 2}}.Path())
	assert.Equal(t, "M1 2 L3 4", Polygon{{1, 2}, {3, 4}}.Path())
}
