package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/segment-cutout/pkg/processing"
)

var (
	describeImage   string
	describeSticker string
	describeCheck   bool
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Describe an existing sticker within its scene",
	Long: `Describe an existing sticker within its scene using the configured
vision backend. With --check only the scene is sent with a simple prompt,
to verify the model can see images at all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

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

		d, err := newDescriber(cfg.Describer, logger)
		if err != nil {
			return err
		}

		proc := processing.NewProcessor()
		scene, err := proc.LoadImageSmart(describeImage)
		if err != nil {
			return err
		}

		var reply string
		if describeCheck {
			reply, err = d.TestVision(cmd.Context(), scene)
		} else {
			if describeSticker == "" {
				return fmt.Errorf("--sticker is required unless --check is set")
			}
			sticker, lerr := proc.LoadImageSmart(describeSticker)
			if lerr != nil {
				return lerr
			}
			reply, err = d.Describe(cmd.Context(), scene, sticker)
		}
		if err != nil {
			return err
		}

		logger.Debug("vision reply", zap.String("model", cfg.Describer.Model), zap.Bool("check", describeCheck))
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	describeCmd.Flags().StringVarP(&describeImage, "image", "i", "", "scene image path or URL")
	describeCmd.Flags().StringVarP(&describeSticker, "sticker", "s", "", "sticker image path or URL")
	describeCmd.Flags().BoolVar(&describeCheck, "check", false, "only check that the model can see the scene")
	describeCmd.Flags().StringVar(&cutoutProvider, "provider", "ollama", "vision backend: ollama or llamacpp")
	describeCmd.Flags().StringVar(&cutoutURL, "url", "", "vision server URL (overrides config)")
	describeCmd.Flags().StringVar(&cutoutModel, "model", "", "vision model name (overrides config)")

	describeCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(describeCmd)
}
