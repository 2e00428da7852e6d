// Package segmentcutout turns segmentation masks into vector outlines and
// transparent sticker cutouts, and remembers what it has already produced.
//
// A Session is bound to one source image. Every mask handed to it is first
// looked up in an approximate cache keyed by mask shape; only on a miss is the
// mask traced, cut out of the image and optionally described by a vision
// model.
//
// Basic usage:
//
//	img, _ := processing.NewProcessor().LoadImage("photo.jpg")
//	scale, _ := geometry.DefaultModelScale(img.Bounds().Dx(), img.Bounds().Dy())
//
//	session, err := segmentcutout.NewSession(img, scale)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	seg, outcome, err := session.Segment(ctx, m)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(outcome, seg.Paths)
//
// The package consists of these components:
//
// 1. Tracer (pkg/tracer): run-length encodes a mask and traces its outline
// 2. Geometry (pkg/geometry): converts points between native, model, upload and canvas space
// 3. Cropper (pkg/cropper): cuts the traced outline out of the source image
// 4. Segment cache (pkg/segcache): LSH index over masks with IoU verification
// 5. Describer (pkg/describe): optional vision model description of a cutout
package segmentcutout

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/menta2k/segment-cutout/internal/config"
	"github.com/menta2k/segment-cutout/pkg/cropper"
	"github.com/menta2k/segment-cutout/pkg/geometry"
	"github.com/menta2k/segment-cutout/pkg/mask"
	"github.com/menta2k/segment-cutout/pkg/segcache"
	"github.com/menta2k/segment-cutout/pkg/tracer"
	"github.com/menta2k/segment-cutout/pkg/types"
)

// Version of the segment cutout library
const Version = "1.0.0"

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

var (
	// ErrThrottled is returned by Hover when called faster than the hover rate.
	ErrThrottled = errors.New("segmentcutout: hover throttled")

	// ErrEmptySegment is returned when a mask traces to no outline at all.
	ErrEmptySegment = errors.New("segmentcutout: mask has no foreground")

	// ErrNoImage is returned by NewSession without a source image.
	ErrNoImage = errors.New("segmentcutout: no source image")
)

// Outcome reports whether a segment came from the cache.
type Outcome int

const (
	// Miss means the segment was traced and cut out for this call.
	Miss Outcome = iota
	// Hit means a stored segment was similar enough to reuse.
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}
	return "miss"
}

// Describer produces a short description of a cutout within its scene.
// *describe.Describer satisfies it.
type Describer interface {
	Describe(ctx context.Context, scene, sticker image.Image) (string, error)
}

// Segment is the vectorized and cut out form of one mask. Segments returned
// by a Session are shared with its cache and must be treated as read-only.
type Segment struct {
	ID      string
	CacheID string
	// Paths are SVG path strings in mask (upload) space.
	Paths   []string
	Sticker *image.NRGBA
	// Bounds is the region of the source image the sticker covers.
	Bounds image.Rectangle
	// Centroid is the mask centroid in canvas space.
	Centroid    geometry.PointF
	Description string
	Mask        mask.Mask
	// Similarity is the IoU with the query mask. It is 1 for fresh segments.
	Similarity float64
	Cached     bool
}

// Area returns the summed signed area of all paths, holes subtracted.
func (s *Segment) Area() int {
	total := 0
	for _, p := range s.Paths {
		total += tracer.AreaOfPath(p)
	}
	return total
}

// Report returns the serializable summary of the segment.
func (s *Segment) Report() types.SegmentReport {
	return types.SegmentReport{
		ID:          s.ID,
		CacheID:     s.CacheID,
		Cached:      s.Cached,
		Similarity:  s.Similarity,
		MaskWidth:   s.Mask.Width,
		MaskHeight:  s.Mask.Height,
		Paths:       s.Paths,
		Area:        s.Area(),
		Centroid:    types.Point{X: s.Centroid.X, Y: s.Centroid.Y},
		Bounds:      types.Rect{X: s.Bounds.Min.X, Y: s.Bounds.Min.Y, W: s.Bounds.Dx(), H: s.Bounds.Dy()},
		Description: s.Description,
	}
}

type sessionOptions struct {
	config    *config.Config
	logger    *zap.Logger
	describer Describer
	hoverRate time.Duration
	hoverSet  bool
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *sessionOptions) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithLogger sets the logger used by the session and its cache.
func WithLogger(l *zap.Logger) Option {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDescriber enables descriptions for new segments.
func WithDescriber(d Describer) Option {
	return func(o *sessionOptions) {
		o.describer = d
	}
}

// WithHoverRate sets the minimum interval between two Hover calls. Zero
// disables throttling.
func WithHoverRate(interval time.Duration) Option {
	return func(o *sessionOptions) {
		o.hoverRate = max(0, interval)
		o.hoverSet = true
	}
}

// Session processes masks for a single source image.
type Session struct {
	image     image.Image
	scale     geometry.ModelScale
	converter geometry.Converter
	maxArea   int
	tracer    *tracer.Tracer
	cropper   *cropper.PathCropper
	cache     *segcache.Cache[*Segment]
	describer Describer
	limiter   *rate.Limiter
	flight    singleflight.Group
	threshold float64
	logger    *zap.Logger
}

// NewSession creates a session for img, whose model scale must have been
// derived from img's dimensions.
func NewSession(img image.Image, scale geometry.ModelScale, opts ...Option) (*Session, error) {
	if img == nil {
		return nil, ErrNoImage
	}

	o := sessionOptions{config: config.Default(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() != scale.Width || b.Dy() != scale.Height {
		return nil, fmt.Errorf("model scale is for %dx%d but image is %dx%d",
			scale.Width, scale.Height, b.Dx(), b.Dy())
	}
	if scale.MaskWidth <= 0 || scale.MaskHeight <= 0 || scale.UploadScale <= 0 {
		return nil, fmt.Errorf("invalid model scale %+v", scale)
	}

	cfg := o.config
	hover := time.Duration(cfg.Canvas.HoverIntervalMs) * time.Millisecond
	if o.hoverSet {
		hover = o.hoverRate
	}
	limit := rate.Inf
	if hover > 0 {
		limit = rate.Every(hover)
	}

	cacheOpts := []segcache.Option{
		segcache.WithNumHashes(cfg.Cache.NumHashes),
		segcache.WithHashSize(cfg.Cache.HashSize),
		segcache.WithLogger(o.logger.Named("segcache")),
	}
	if cfg.Cache.MaxRecords > 0 {
		cacheOpts = append(cacheOpts, segcache.WithMaxRecords(cfg.Cache.MaxRecords))
	}

	return &Session{
		image:     img,
		scale:     scale,
		converter: geometry.NewConverter(scale, cfg.Canvas.MaxCanvasArea),
		maxArea:   cfg.Canvas.MaxCanvasArea,
		tracer:    tracer.NewWithConfig(tracer.Config{MaxRegionSize: cfg.Tracer.MaxRegionSize}),
		cropper:   cropper.NewWithConfig(cropper.CropConfig{MaxStickerSize: cfg.Sticker.MaxSize}),
		cache:     segcache.New[*Segment](cacheOpts...),
		describer: o.describer,
		limiter:   rate.NewLimiter(limit, 1),
		threshold: cfg.Cache.SimilarityThreshold,
		logger:    o.logger,
	}, nil
}

// Segment returns the segment for m, reusing a cached one when its IoU with
// m reaches the similarity threshold. Concurrent misses for the same mask
// are computed once. A mask with no foreground returns ErrEmptySegment.
//
// If the describer fails because ctx was cancelled or timed out, the segment
// is returned without a description and is not cached. Other describer
// failures are logged and the undescribed segment is cached.
func (s *Session) Segment(ctx context.Context, m mask.Mask) (*Segment, Outcome, error) {
	if err := s.checkMask(m); err != nil {
		return nil, Miss, err
	}

	seg, ok, err := s.lookup(ctx, m)
	if err != nil {
		return nil, Miss, err
	}
	if ok {
		return seg, Hit, nil
	}

	v, err, shared := s.flight.Do(maskKey(m), func() (any, error) {
		// a concurrent flight may have stored it in the meantime
		if seg, ok, err := s.lookup(ctx, m); err != nil || ok {
			return seg, err
		}
		return s.build(ctx, m)
	})
	if err != nil {
		return nil, Miss, err
	}
	seg = v.(*Segment)
	if shared {
		s.logger.Debug("shared in-flight segment", zap.String("id", seg.ID))
	}
	if seg.Cached {
		return seg, Hit, nil
	}
	return seg, Miss, nil
}

// Hover is Segment throttled to the hover rate. Calls arriving too early
// return ErrThrottled without doing any work.
func (s *Session) Hover(ctx context.Context, m mask.Mask) (*Segment, Outcome, error) {
	if !s.limiter.Allow() {
		return nil, Miss, ErrThrottled
	}
	return s.Segment(ctx, m)
}

func (s *Session) lookup(ctx context.Context, m mask.Mask) (*Segment, bool, error) {
	match, ok, err := s.cache.FindBestMatch(ctx, m, s.threshold)
	if err != nil || !ok {
		return nil, false, err
	}

	seg := *match.Result
	seg.Similarity = match.IoU
	seg.Cached = true
	s.logger.Debug("segment cache hit",
		zap.String("id", seg.ID),
		zap.String("cache_id", match.ID),
		zap.Float64("iou", match.IoU),
	)
	return &seg, true, nil
}

func (s *Session) build(ctx context.Context, m mask.Mask) (*Segment, error) {
	start := time.Now()

	paths, err := s.tracer.TraceToSVG(m)
	if err != nil {
		return nil, fmt.Errorf("failed to trace mask: %w", err)
	}
	if len(paths) == 0 {
		return nil, ErrEmptySegment
	}

	crop, err := s.cropper.CropByPath(s.image, paths, s.scale.UploadScale)
	if err != nil {
		return nil, fmt.Errorf("failed to cut out segment: %w", err)
	}

	c := geometry.MaskCentroid(m)
	seg := &Segment{
		ID:         uuid.NewString(),
		Paths:      paths,
		Sticker:    crop.Image,
		Bounds:     crop.Bounds,
		Centroid:   s.converter.MaskToCanvas(c.X, c.Y),
		Mask:       m.Clone(),
		Similarity: 1,
	}

	if s.describer != nil {
		desc, err := s.describer.Describe(ctx, s.image, s.cropper.Downscale(crop.Image))
		switch {
		case err != nil && isContextErr(ctx, err):
			// not stored, so the next request for this mask describes it again
			s.logger.Debug("describe interrupted, segment not cached", zap.String("id", seg.ID), zap.Error(err))
			return seg, nil
		case err != nil:
			s.logger.Warn("failed to describe segment", zap.String("id", seg.ID), zap.Error(err))
		default:
			seg.Description = desc
		}
	}

	cacheID, err := s.cache.Store(ctx, m, seg)
	if err != nil {
		return nil, fmt.Errorf("failed to store segment: %w", err)
	}
	seg.CacheID = cacheID

	s.logger.Debug("built segment",
		zap.String("id", seg.ID),
		zap.String("cache_id", cacheID),
		zap.Int("paths", len(paths)),
		zap.Stringer("bounds", seg.Bounds),
		zap.Duration("took", time.Since(start)),
	)
	return seg, nil
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Session) checkMask(m mask.Mask) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Width != s.scale.MaskWidth || m.Height != s.scale.MaskHeight {
		return fmt.Errorf("%w: mask is %dx%d, expected %dx%d", mask.ErrDimensionMismatch,
			m.Width, m.Height, s.scale.MaskWidth, s.scale.MaskHeight)
	}
	return nil
}

// maskKey identifies a mask by content for in-flight deduplication.
func maskKey(m mask.Mask) string {
	h := sha256.New()
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[:8], uint64(m.Width))
	binary.LittleEndian.PutUint64(dims[8:], uint64(m.Height))
	h.Write(dims[:])
	for _, v := range m.Data {
		if v > 0 {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Centroid returns the centroid of m in canvas space.
func (s *Session) Centroid(m mask.Mask) geometry.PointF {
	c := geometry.MaskCentroid(m)
	return s.converter.MaskToCanvas(c.X, c.Y)
}

// ClickToMask maps a canvas click to the mask coordinates the model expects.
func (s *Session) ClickToMask(p geometry.PointF) geometry.PointF {
	return s.converter.ClickToMask(p)
}

// CanvasSize returns the displayed size of the source image.
func (s *Session) CanvasSize() (width, height int) {
	b := s.image.Bounds()
	width, height, _ = geometry.CanvasSize(b.Dx(), b.Dy(), s.maxArea)
	return width, height
}

// Scale returns the model scale the session was created with.
func (s *Session) Scale() geometry.ModelScale {
	return s.scale
}

// Stats returns the statistics of the session's segment cache.
func (s *Session) Stats() segcache.Stats {
	return s.cache.Stats()
}

// Reset forgets all cached segments.
func (s *Session) Reset() {
	s.cache.Clear()
}
