package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	segmentcutout "github.com/menta2k/segment-cutout"
	"github.com/menta2k/segment-cutout/internal/config"
	"github.com/menta2k/segment-cutout/internal/utils"
)

var (
	// cfg is the configuration shared by subcommands
	cfg *config.Config
	// logger is the process logger, built from cfg.Log and the flags below
	logger *zap.Logger

	configPath string
	logMode    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "segment-cutout",
	Short:   "Trace segmentation masks into SVG paths and cut out stickers",
	Version: segmentcutout.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
		if logMode != "" {
			cfg.Log.Mode = logMode
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = utils.NewLogger(cfg.Log.Mode, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.Sync(logger)
	},
}

// loadConfig reads path when given, else the default location if it exists,
// else falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if def := config.GetConfigPath(); utils.FileExists(def) {
		return config.LoadFromFile(def)
	}
	return config.Default(), nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ~/.config/segment-cutout/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "logger mode: development or production")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
