// Package tracer converts raster masks into closed vector polygons and SVG
// style path strings, dropping spurious tiny regions.
package tracer

import (
	"fmt"

	"github.com/menta2k/segment-cutout/pkg/mask"
)

// Tracer traces masks into filtered boundary paths.
type Tracer struct {
	config Config
}

// Config holds configuration for the tracer
type Config struct {
	// MaxRegionSize is the largest absolute area still considered noise.
	MaxRegionSize int
}

// New creates a new Tracer with default configuration
func New() *Tracer {
	return &Tracer{
		config: Config{
			MaxRegionSize: DefaultMaxRegionSize,
		},
	}
}

// NewWithConfig creates a new Tracer with custom configuration
func NewWithConfig(config Config) *Tracer {
	if config.MaxRegionSize < 0 {
		config.MaxRegionSize = 0
	}
	return &Tracer{config: config}
}

// Trace returns every boundary polygon of the mask, unfiltered. An all
// background mask yields no polygons.
func (t *Tracer) Trace(m mask.Mask) ([]Polygon, error) {
	rle, err := EncodeRLE(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask: %w", err)
	}
	polys, err := GeneratePolygons(rle, m.Width, m.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to generate polygons: %w", err)
	}
	return polys, nil
}

// TraceToSVG traces the mask and returns one path string per surviving
// region.
func (t *Tracer) TraceToSVG(m mask.Mask) ([]string, error) {
	polys, err := t.Trace(m)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(polys))
	for _, p := range polys {
		paths = append(paths, p.Path())
	}
	return FilterSmallRegions(paths, t.config.MaxRegionSize), nil
}

// MaxRegionSize returns the configured noise threshold.
func (t *Tracer) MaxRegionSize() int {
	return t.config.MaxRegionSize
}
