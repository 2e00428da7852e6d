package tracer

import (
	"math"
	"strconv"
	"strings"
)

// DefaultMaxRegionSize is the area (in square pixels) at or below which a
// traced region is treated as noise.
const DefaultMaxRegionSize = 100

// AreaUnderLine returns the signed area between the edge (x0,y0)->(x1,y1) and
// the x axis. The triangular part is truncated toward zero, not rounded.
func AreaUnderLine(x0, y0, x1, y1 int) int {
	if x0 == x1 {
		return 0
	}
	ymin := min(y0, y1)
	ymax := max(y0, y1)
	square := (x1 - x0) * ymin
	// Go integer division truncates toward zero.
	triangle := (x1 - x0) * (ymax - ymin) / 2
	return square + triangle
}

// AreaOfPath computes the signed area of a serialized polygon. Malformed
// paths (fewer than two points or an odd number of coordinates) have area 0.
func AreaOfPath(path string) int {
	coords, ok := pathCoords(path)
	if !ok || len(coords) < 4 || len(coords)%2 != 0 {
		return 0
	}

	area := 0
	oldX, oldY := coords[len(coords)-2], coords[len(coords)-1]
	for i := 0; i < len(coords); i += 2 {
		newX, newY := coords[i], coords[i+1]
		area += AreaUnderLine(oldX, oldY, newX, newY)
		oldX, oldY = newX, newY
	}
	return area
}

// pathCoords extracts the integer coordinates of an M/L path. Fractional
// values are truncated.
func pathCoords(path string) ([]int, bool) {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})

	coords := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimLeft(f, "MLml")
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			fv, ferr := strconv.ParseFloat(f, 64)
			if ferr != nil || math.IsNaN(fv) || math.IsInf(fv, 0) {
				return nil, false
			}
			v = int(fv)
		}
		coords = append(coords, v)
	}
	return coords, true
}

// ParsePath parses a path produced by Polygon.Path back into vertices.
func ParsePath(path string) (Polygon, bool) {
	coords, ok := pathCoords(path)
	if !ok || len(coords)%2 != 0 {
		return nil, false
	}
	poly := make(Polygon, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		poly = append(poly, Point{X: coords[i], Y: coords[i+1]})
	}
	return poly, true
}

// FilterSmallRegions drops paths whose absolute area is at most
// maxRegionSize. Both outer boundaries and holes are filtered. When nothing
// survives, the path with the largest signed area is kept so a non-empty mask
// never loses its object. An empty input is returned unchanged.
func FilterSmallRegions(paths []string, maxRegionSize int) []string {
	if len(paths) == 0 {
		return paths
	}

	var kept []string
	for _, p := range paths {
		if abs(AreaOfPath(p)) > maxRegionSize {
			kept = append(kept, p)
		}
	}
	if len(kept) > 0 {
		return kept
	}

	best := 0
	bestArea := AreaOfPath(paths[0])
	for i := 1; i < len(paths); i++ {
		if a := AreaOfPath(paths[i]); a > bestArea {
			best, bestArea = i, a
		}
	}
	return []string{paths[best]}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
