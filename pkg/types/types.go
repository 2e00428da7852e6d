package types

// Point is a position in canvas coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a pixel rectangle in the source image
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// SegmentReport is the serializable summary of a processed segment
type SegmentReport struct {
	ID          string   `json:"id"`
	CacheID     string   `json:"cache_id"`
	Cached      bool     `json:"cached"`
	Similarity  float64  `json:"similarity,omitempty"`
	MaskWidth   int      `json:"mask_width"`
	MaskHeight  int      `json:"mask_height"`
	Paths       []string `json:"paths"`
	Area        int      `json:"area"`
	Centroid    Point    `json:"centroid"`
	Bounds      Rect     `json:"bounds"`
	Description string   `json:"description,omitempty"`
	Sticker     string   `json:"sticker,omitempty"`
	Overlay     string   `json:"overlay,omitempty"`
}

// OutputOptions controls which files the CLI writes for a segment
type OutputOptions struct {
	OutputDir    string
	Format       string
	Quality      int
	Lossless     bool
	DebugOverlay bool
	Describe     bool
}
