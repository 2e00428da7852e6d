package tracer

import (
	"fmt"
	"strings"
)

// Point is a vertex on the pixel-corner lattice.
type Point struct {
	X int
	Y int
}

// Polygon is an implicitly closed vertex sequence. Outer boundaries have a
// positive signed area, holes a negative one.
type Polygon []Point

// SignedArea returns the area of the polygon using AreaUnderLine for every
// edge, starting with the closing edge from the last vertex.
func (p Polygon) SignedArea() int {
	if len(p) < 2 {
		return 0
	}
	area := 0
	prev := p[len(p)-1]
	for _, pt := range p {
		area += AreaUnderLine(prev.X, prev.Y, pt.X, pt.Y)
		prev = pt
	}
	return area
}

// Path serializes the polygon as "M<x0> <y0> L<x1> <y1> <x2> <y2> ...".
func (p Polygon) Path() string {
	var b strings.Builder
	for i, pt := range p {
		switch i {
		case 0:
			fmt.Fprintf(&b, "M%d %d", pt.X, pt.Y)
		case 1:
			fmt.Fprintf(&b, " L%d %d", pt.X, pt.Y)
		default:
			fmt.Fprintf(&b, " %d %d", pt.X, pt.Y)
		}
	}
	return b.String()
}

// edge is a unit-length directed boundary edge. Foreground always lies on
// the same side of the walking direction, so outer loops and holes get
// opposite windings.
type edge struct {
	from Point
	to   Point
}

func (e edge) dir() Point {
	return Point{X: e.to.X - e.from.X, Y: e.to.Y - e.from.Y}
}

func cross(a, b Point) int {
	return a.X*b.Y - a.Y*b.X
}

// segmentBuilder scans the raster column by column and emits boundary edges.
// Its state is the occupancy of the previous column plus the pen column.
type segmentBuilder struct {
	height int
	x      int
	prev   []bool
	cur    []bool
	edges  []edge
}

func newSegmentBuilder(height int) *segmentBuilder {
	return &segmentBuilder{
		height: height,
		prev:   make([]bool, height),
		cur:    make([]bool, height),
	}
}

// consume processes the foreground spans of the next column.
func (b *segmentBuilder) consume(col []interval) {
	clear(b.cur)
	for _, iv := range col {
		for y := iv.y0; y < iv.y1; y++ {
			b.cur[y] = true
		}
	}

	b.emitVertical()

	x := b.x
	for _, iv := range col {
		// top boundary walks left, bottom boundary walks right
		b.edges = append(b.edges,
			edge{from: Point{x + 1, iv.y0}, to: Point{x, iv.y0}},
			edge{from: Point{x, iv.y1}, to: Point{x + 1, iv.y1}},
		)
	}

	b.prev, b.cur = b.cur, b.prev
	b.x++
}

// finish closes the right-most column against the empty border.
func (b *segmentBuilder) finish() []edge {
	clear(b.cur)
	b.emitVertical()
	return b.edges
}

// emitVertical compares the previous and current column along the grid line
// between them.
func (b *segmentBuilder) emitVertical() {
	x := b.x
	for y := 0; y < b.height; y++ {
		switch {
		case b.cur[y] && !b.prev[y]:
			b.edges = append(b.edges, edge{from: Point{x, y}, to: Point{x, y + 1}})
		case b.prev[y] && !b.cur[y]:
			b.edges = append(b.edges, edge{from: Point{x, y + 1}, to: Point{x, y}})
		}
	}
}

// chainer links boundary edges into closed polygons. Each lattice vertex has
// one or two outgoing edges; at a vertex where two regions touch diagonally
// the walk always takes the turn that keeps the regions apart.
type chainer struct {
	edges    []edge
	outgoing map[Point][]int
	used     []bool
}

func newChainer(edges []edge) *chainer {
	c := &chainer{
		edges:    edges,
		outgoing: make(map[Point][]int, len(edges)),
		used:     make([]bool, len(edges)),
	}
	for i, e := range edges {
		c.outgoing[e.from] = append(c.outgoing[e.from], i)
	}
	return c
}

func (c *chainer) next(i int) int {
	cands := c.outgoing[c.edges[i].to]
	if len(cands) == 1 {
		return cands[0]
	}
	d := c.edges[i].dir()
	for _, j := range cands {
		if cross(d, c.edges[j].dir()) < 0 {
			return j
		}
	}
	return cands[0]
}

// walk follows the loop that starts with edge start and returns its corner
// vertices.
func (c *chainer) walk(start int) (Polygon, error) {
	loop := []int{start}
	c.used[start] = true
	for j := c.next(start); j != start; j = c.next(j) {
		if c.used[j] || len(loop) > len(c.edges) {
			return nil, fmt.Errorf("tracer: boundary loop through edge %d does not close", start)
		}
		c.used[j] = true
		loop = append(loop, j)
	}

	var poly Polygon
	n := len(loop)
	for k, i := range loop {
		prev := c.edges[loop[(k+n-1)%n]]
		if prev.dir() != c.edges[i].dir() {
			poly = append(poly, c.edges[i].from)
		}
	}
	return poly, nil
}

func (c *chainer) polygons() ([]Polygon, error) {
	var out []Polygon
	for i := range c.edges {
		if c.used[i] {
			continue
		}
		poly, err := c.walk(i)
		if err != nil {
			return nil, err
		}
		out = append(out, poly)
	}
	return out, nil
}

// GeneratePolygons turns column-major run lengths of a width x height raster
// into closed boundary polygons: one per 4-connected foreground component and
// one per hole.
func GeneratePolygons(rle []int, width, height int) ([]Polygon, error) {
	cols, err := columnIntervals(rle, width, height)
	if err != nil {
		return nil, err
	}

	b := newSegmentBuilder(height)
	for _, col := range cols {
		b.consume(col)
	}
	edges := b.finish()
	if len(edges) == 0 {
		return nil, nil
	}

	return newChainer(edges).polygons()
}
