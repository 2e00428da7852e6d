package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/segment-cutout/pkg/processing"
	"github.com/menta2k/segment-cutout/pkg/tracer"
)

var (
	traceMask      string
	traceOutput    string
	traceMaxRegion int
)

// traceResult is what the trace command prints
type traceResult struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Paths  []string `json:"paths"`
	Areas  []int    `json:"areas"`
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace a mask image into SVG path strings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		maxRegion := cfg.Tracer.MaxRegionSize
		if cmd.Flags().Changed("max-region") {
			maxRegion = traceMaxRegion
		}

		if traceOutput == "" || traceOutput == "-" {
			return runTrace(cmd.OutOrStdout(), traceMask, maxRegion)
		}
		f, err := os.Create(traceOutput)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		return runTrace(f, traceMask, maxRegion)
	},
}

func runTrace(w io.Writer, source string, maxRegion int) error {
	m, err := processing.NewProcessor().LoadMask(source)
	if err != nil {
		return err
	}

	paths, err := tracer.NewWithConfig(tracer.Config{MaxRegionSize: maxRegion}).TraceToSVG(m)
	if err != nil {
		return err
	}

	res := traceResult{Width: m.Width, Height: m.Height, Paths: paths, Areas: make([]int, len(paths))}
	for i, p := range paths {
		res.Areas[i] = tracer.AreaOfPath(p)
	}
	if logger != nil {
		logger.Info("traced mask",
			zap.String("mask", source),
			zap.Int("width", m.Width),
			zap.Int("height", m.Height),
			zap.Int("paths", len(paths)),
		)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	traceCmd.Flags().StringVarP(&traceMask, "mask", "m", "", "mask image path or URL (non-zero gray = foreground)")
	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "-", "output JSON file, - for stdout")
	traceCmd.Flags().IntVar(&traceMaxRegion, "max-region", 100, "drop regions whose area is at most this (overrides config)")

	traceCmd.MarkFlagRequired("mask")
	rootCmd.AddCommand(traceCmd)
}
