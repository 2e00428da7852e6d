// Package describe asks a vision model for a short product description of a
// segmented object, given the full scene for context.
package describe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/segment-cutout/pkg/client"
	"github.com/menta2k/segment-cutout/pkg/processing"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// SystemPrompt instructs the model to describe the selected object.
const SystemPrompt = `You are a product description expert.
You will be provided with two images:
1. A context image showing multiple objects
2. A selected object that was segmented from the context image

Generate a brief product description for the selected object.

Keep it under 30 words. Focus only on:
- Product name
- Color
- Material
- One key feature

Do not include any explanations or additional text.

Example output:
A sleek, red ceramic vase with a glossy finish, featuring an elegant curved design.`

// UserPrompt accompanies the two images.
const UserPrompt = `Brief description (max 30 words):`

// ErrNoDescription is returned when the model reply is empty after cleanup.
var ErrNoDescription = errors.New("describe: model returned no description")

// Config holds configuration for the describer
type Config struct {
	Model string
	// MaxImageDim bounds both images before upload.
	MaxImageDim int
	// Quality is the JPEG quality of the context image.
	Quality int
	// MaxWords truncates the cleaned reply. Zero keeps every word.
	MaxWords int
	// Timeout bounds one Describe call. Zero leaves the context as is.
	Timeout time.Duration
}

// DefaultConfig returns the defaults used when a field is left empty.
func DefaultConfig() Config {
	return Config{
		MaxImageDim: 720,
		Quality:     85,
		MaxWords:    30,
	}
}

// Describer turns a sticker and its scene into a description.
type Describer struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	logger    *zap.Logger
}

// NewDescriber creates a describer backed by a vision client
func NewDescriber(c client.VisionClient, config Config, logger *zap.Logger) *Describer {
	def := DefaultConfig()
	if config.MaxImageDim <= 0 {
		config.MaxImageDim = def.MaxImageDim
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	if config.MaxWords < 0 {
		config.MaxWords = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Describer{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
		logger:    logger,
	}
}

// Describe sends the scene and the sticker and returns the cleaned reply.
// The sticker is sent as PNG so its transparent background survives.
func (d *Describer) Describe(ctx context.Context, scene, sticker image.Image) (string, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	sceneB64, err := d.processor.PrepareImageForModel(scene, "jpg", d.config.MaxImageDim, d.config.Quality)
	if err != nil {
		return "", fmt.Errorf("failed to encode scene: %w", err)
	}
	stickerB64, err := d.processor.PrepareImageForModel(sticker, "png", d.config.MaxImageDim, d.config.Quality)
	if err != nil {
		return "", fmt.Errorf("failed to encode sticker: %w", err)
	}

	raw, err := d.client.DescribeImages(ctx, d.config.Model, SystemPrompt, UserPrompt, []string{sceneB64, stickerB64})
	if err != nil {
		return "", fmt.Errorf("failed to describe segment: %w", err)
	}

	desc := Normalize(raw, d.config.MaxWords)
	d.logger.Debug("described segment",
		zap.String("model", d.config.Model),
		zap.Int("raw_len", len(raw)),
		zap.String("description", desc),
	)
	if desc == "" {
		return "", ErrNoDescription
	}
	return desc, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Describer) TestVision(ctx context.Context, img image.Image) (string, error) {
	b64, err := d.processor.PrepareImageForModel(img, "jpg", d.config.MaxImageDim, d.config.Quality)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, b64)
}

var (
	reListMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// Normalize strips code fences, list markers, labels and surrounding quotes
// from a model reply, collapses whitespace and keeps at most maxWords words.
func Normalize(raw string, maxWords int) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	// Keep the first non-empty line
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			raw = line
			break
		}
	}

	raw = reListMarker.ReplaceAllString(raw, "")
	if i := strings.Index(raw, ":"); i >= 0 && i < 24 && strings.Contains(strings.ToLower(raw[:i]), "description") {
		raw = raw[i+1:]
	}
	raw = strings.Trim(strings.TrimSpace(raw), `"'“”`)
	raw = reSpaces.ReplaceAllString(strings.TrimSpace(raw), " ")

	if maxWords > 0 {
		words := strings.Fields(raw)
		if len(words) > maxWords {
			raw = strings.Join(words[:maxWords], " ")
		}
	}
	return raw
}
