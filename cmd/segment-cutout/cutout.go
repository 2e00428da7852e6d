package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	segmentcutout "github.com/menta2k/segment-cutout"
	"github.com/menta2k/segment-cutout/internal/config"
	"github.com/menta2k/segment-cutout/internal/utils"
	"github.com/menta2k/segment-cutout/pkg/client"
	"github.com/menta2k/segment-cutout/pkg/describe"
	"github.com/menta2k/segment-cutout/pkg/geometry"
	"github.com/menta2k/segment-cutout/pkg/llamacpp"
	"github.com/menta2k/segment-cutout/pkg/mask"
	"github.com/menta2k/segment-cutout/pkg/ollama"
	"github.com/menta2k/segment-cutout/pkg/processing"
	"github.com/menta2k/segment-cutout/pkg/types"
)

var (
	cutoutImage    string
	cutoutMasks    []string
	cutoutOpts     types.OutputOptions
	cutoutProvider string
	cutoutURL      string
	cutoutModel    string
)

var cutoutCmd = &cobra.Command{
	Use:   "cutout",
	Short: "Cut stickers out of an image using one or more masks",
	Long: `Cut stickers out of an image using one or more masks.

Masks are traced into SVG paths, cut out of the image with a transparent
background and written next to a JSON report. Masks similar to one already
processed in the same run reuse the earlier result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		opts := outputOptions(cmd)
		if opts.Describe {
			if cmd.Flags().Changed("provider") {
				cfg.Describer.Provider = cutoutProvider
			}
			if cmd.Flags().Changed("url") {
				cfg.Describer.URL = cutoutURL
			}
			if cmd.Flags().Changed("model") {
				cfg.Describer.Model = cutoutModel
			}
			cfg.Describer.Enabled = true
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		reports, err := runCutout(cmd.Context(), cutoutImage, cutoutMasks, opts)
		if err != nil {
			return err
		}

		base := strings.TrimSuffix(filepath.Base(cutoutImage), filepath.Ext(cutoutImage))
		reportPath := filepath.Join(opts.OutputDir, utils.SanitizeFilename(base)+"_report.json")
		if err := utils.WriteJSON(reportPath, reports); err != nil {
			return err
		}
		logger.Info("wrote report", zap.String("path", reportPath), zap.Int("segments", len(reports)))
		return nil
	},
}

// outputOptions merges the output section of the config with any flags the
// user set explicitly.
func outputOptions(cmd *cobra.Command) types.OutputOptions {
	opts := types.OutputOptions{
		OutputDir:    cfg.Output.OutputDir,
		Format:       cfg.Output.DefaultFormat,
		Quality:      cfg.Output.Quality,
		Lossless:     cfg.Output.Lossless,
		DebugOverlay: cutoutOpts.DebugOverlay,
		Describe:     cutoutOpts.Describe || cfg.Describer.Enabled,
	}
	flags := cmd.Flags()
	if flags.Changed("out") {
		opts.OutputDir = cutoutOpts.OutputDir
	}
	if flags.Changed("format") {
		opts.Format = strings.ToLower(cutoutOpts.Format)
	}
	if flags.Changed("quality") {
		opts.Quality = cutoutOpts.Quality
	}
	if flags.Changed("lossless") {
		opts.Lossless = cutoutOpts.Lossless
	}
	return opts
}

func runCutout(ctx context.Context, imagePath string, maskSources []string, opts types.OutputOptions) ([]types.SegmentReport, error) {
	if err := utils.EnsureDir(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	proc := processing.NewProcessor()
	img, err := proc.LoadImageSmart(imagePath)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	scale, err := geometry.NewModelScale(b.Dx(), b.Dy(), cfg.Canvas.ModelImageSize, cfg.Canvas.UploadImageSize)
	if err != nil {
		return nil, err
	}
	info := proc.GetImageInfo(img)
	logger.Debug("loaded image",
		zap.String("image", imagePath),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("aspect_ratio", info.AspectRatio),
		zap.Float64("upload_scale", scale.UploadScale),
		zap.Int("mask_width", scale.MaskWidth),
		zap.Int("mask_height", scale.MaskHeight),
	)

	sessionOpts := []segmentcutout.Option{
		segmentcutout.WithConfig(cfg),
		segmentcutout.WithLogger(logger),
	}
	if opts.Describe {
		d, err := newDescriber(cfg.Describer, logger)
		if err != nil {
			return nil, err
		}
		sessionOpts = append(sessionOpts, segmentcutout.WithDescriber(d))
	}

	session, err := segmentcutout.NewSession(img, scale, sessionOpts...)
	if err != nil {
		return nil, err
	}
	converter := geometry.NewConverter(scale, cfg.Canvas.MaxCanvasArea)

	var reports []types.SegmentReport
	for i, src := range maskSources {
		m, err := proc.LoadMask(src)
		if err != nil {
			return reports, err
		}
		m = fitMask(m, scale.MaskWidth, scale.MaskHeight)

		seg, outcome, err := session.Segment(ctx, m)
		if errors.Is(err, segmentcutout.ErrEmptySegment) {
			logger.Warn("mask is empty, skipping", zap.String("mask", src))
			continue
		}
		if err != nil {
			return reports, fmt.Errorf("segment %s: %w", src, err)
		}

		report := seg.Report()
		report.Sticker = utils.SegmentFilename(imagePath, opts.OutputDir, cfg.Output.Prefix, cfg.Output.Suffix, opts.Format, i+1)
		if err := proc.SaveImage(seg.Sticker, report.Sticker, opts.Format, opts.Quality, opts.Lossless); err != nil {
			return reports, err
		}

		if opts.DebugOverlay {
			polys, err := geometry.ParsePaths(seg.Paths, 1/scale.UploadScale, 1/scale.UploadScale)
			if err != nil {
				return reports, err
			}
			centroid := converter.Convert(seg.Centroid, geometry.CanvasSpace, geometry.NativeSpace)
			overlay := proc.CreateDebugOverlay(img, processing.Overlay{Mask: &seg.Mask, Paths: polys, Centroid: &centroid})

			report.Overlay = utils.SegmentFilename(imagePath, opts.OutputDir, cfg.Output.Prefix, "_overlay", "png", i+1)
			if err := proc.SaveImage(overlay, report.Overlay, "png", 0, false); err != nil {
				return reports, err
			}
		}

		logger.Info("processed segment",
			zap.String("mask", src),
			zap.Stringer("outcome", outcome),
			zap.String("cache_id", seg.CacheID),
			zap.Float64("similarity", seg.Similarity),
			zap.Int("paths", len(seg.Paths)),
			zap.String("sticker", report.Sticker),
		)
		reports = append(reports, report)
	}

	stats := session.Stats()
	logger.Debug("segment cache",
		zap.Int("records", stats.Records),
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
	)
	return reports, nil
}

// fitMask resamples m to width x height with nearest neighbour so masks
// exported at any resolution line up with the upload grid.
func fitMask(m mask.Mask, width, height int) mask.Mask {
	if m.Width == width && m.Height == height {
		return m
	}
	white := color.NRGBA{255, 255, 255, 255}
	return mask.FromImage(imaging.Resize(m.ToImage(white), width, height, imaging.NearestNeighbor))
}

func newVisionClient(provider, url string) (client.VisionClient, error) {
	switch provider {
	case "ollama":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (use ollama or llamacpp)", provider)
	}
}

func newDescriber(dc config.DescriberConfig, logger *zap.Logger) (*describe.Describer, error) {
	vc, err := newVisionClient(dc.Provider, dc.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", dc.Provider, err)
	}
	dcfg := describe.DefaultConfig()
	dcfg.Model = dc.Model
	dcfg.MaxWords = dc.MaxWords
	dcfg.MaxImageDim = cfg.Sticker.MaxSize
	dcfg.Timeout = time.Duration(dc.TimeoutSeconds) * time.Second
	return describe.NewDescriber(vc, dcfg, logger.Named("describe")), nil
}

func init() {
	cutoutCmd.Flags().StringVarP(&cutoutImage, "image", "i", "", "source image path or URL (jpg/png/webp)")
	cutoutCmd.Flags().StringArrayVarP(&cutoutMasks, "mask", "m", nil, "mask image path or URL, repeatable")
	cutoutCmd.Flags().StringVarP(&cutoutOpts.OutputDir, "out", "o", "output", "output directory")
	cutoutCmd.Flags().StringVar(&cutoutOpts.Format, "format", "png", "sticker format: png|webp|jpg")
	cutoutCmd.Flags().IntVar(&cutoutOpts.Quality, "quality", 90, "JPEG/WebP quality (1-100)")
	cutoutCmd.Flags().BoolVar(&cutoutOpts.Lossless, "lossless", false, "WebP lossless mode")
	cutoutCmd.Flags().BoolVar(&cutoutOpts.DebugOverlay, "debug", false, "write a debug overlay per segment")
	cutoutCmd.Flags().BoolVar(&cutoutOpts.Describe, "describe", false, "describe each sticker with a vision model")
	cutoutCmd.Flags().StringVar(&cutoutProvider, "provider", "ollama", "vision backend: ollama or llamacpp")
	cutoutCmd.Flags().StringVar(&cutoutURL, "url", "", "vision server URL (overrides config)")
	cutoutCmd.Flags().StringVar(&cutoutModel, "model", "", "vision model name (overrides config)")

	cutoutCmd.MarkFlagRequired("image")
	cutoutCmd.MarkFlagRequired("mask")
	rootCmd.AddCommand(cutoutCmd)
}
