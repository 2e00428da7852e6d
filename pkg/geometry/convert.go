package geometry

import "math"

// PointF is a point in a continuous coordinate space.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Scale multiplies both coordinates by f.
func (p PointF) Scale(f float64) PointF {
	return PointF{X: p.X * f, Y: p.Y * f}
}

// Converter moves points between spaces for one image.
type Converter struct {
	Model  ModelScale
	Canvas float64
}

// NewConverter pairs a model scale with the canvas factor derived from the
// native image area and maxArea.
func NewConverter(scale ModelScale, maxArea int) Converter {
	return Converter{
		Model:  scale,
		Canvas: CanvasScale(scale.Width, scale.Height, maxArea),
	}
}

// factor returns how many units of s one native pixel spans.
func (c Converter) factor(s Space) float64 {
	switch s {
	case ModelSpace:
		return c.Model.Scale
	case UploadSpace:
		return c.Model.UploadScale
	case CanvasSpace:
		return c.Canvas
	default:
		return 1
	}
}

// Convert maps p from one space to another.
func (c Converter) Convert(p PointF, from, to Space) PointF {
	if from == to {
		return p
	}
	f := c.factor(from)
	if f == 0 {
		return p
	}
	return p.Scale(c.factor(to) / f)
}

// ClickToMask maps a canvas click into the mask raster the model expects:
// canvas to model space, then divided by the onnx scale.
func (c Converter) ClickToMask(p PointF) PointF {
	model := c.Convert(p, CanvasSpace, ModelSpace)
	onnx := c.Model.OnnxScale()
	if onnx == 0 {
		return model
	}
	return model.Scale(1 / onnx)
}

// MaskToCanvas maps an integer mask pixel (for example a centroid) onto the
// canvas.
func (c Converter) MaskToCanvas(x, y int) PointF {
	return c.Convert(PointF{X: float64(x), Y: float64(y)}, UploadSpace, CanvasSpace)
}

// RectF is an axis-aligned box. Empty boxes have Max < Min.
type RectF struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width of the box, zero when empty.
func (r RectF) Width() float64 {
	return math.Max(0, r.MaxX-r.MinX)
}

// Height of the box, zero when empty.
func (r RectF) Height() float64 {
	return math.Max(0, r.MaxY-r.MinY)
}

// Empty reports whether the box covers no area.
func (r RectF) Empty() bool {
	return !(r.MaxX > r.MinX && r.MaxY > r.MinY)
}

// BoundingBox returns the tight box around pts. No points yield an empty box.
func BoundingBox(pts []PointF) RectF {
	r := RectF{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range pts {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}
