package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds the application configuration
type Config struct {
	Tracer    TracerConfig    `json:"tracer" yaml:"tracer"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Canvas    CanvasConfig    `json:"canvas" yaml:"canvas"`
	Sticker   StickerConfig   `json:"sticker" yaml:"sticker"`
	Describer DescriberConfig `json:"describer" yaml:"describer"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// TracerConfig holds configuration for mask tracing
type TracerConfig struct {
	MaxRegionSize int `json:"max_region_size" yaml:"max_region_size" validate:"gte=0"`
}

// CacheConfig holds configuration for the segment cache
type CacheConfig struct {
	NumHashes           int     `json:"num_hashes" yaml:"num_hashes" validate:"gte=1,lte=256"`
	HashSize            int     `json:"hash_size" yaml:"hash_size" validate:"gte=1,lte=4096"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	MaxRecords          int     `json:"max_records" yaml:"max_records" validate:"gte=0"`
}

// CanvasConfig holds the model, upload and display sizes
type CanvasConfig struct {
	ModelImageSize  int `json:"model_image_size" yaml:"model_image_size" validate:"gte=1"`
	UploadImageSize int `json:"upload_image_size" yaml:"upload_image_size" validate:"gte=1"`
	MaxCanvasArea   int `json:"max_canvas_area" yaml:"max_canvas_area" validate:"gte=0"`
	// HoverIntervalMs is the minimum time between two hover lookups.
	HoverIntervalMs int `json:"hover_interval_ms" yaml:"hover_interval_ms" validate:"gte=0"`
}

// StickerConfig holds configuration for sticker cutouts
type StickerConfig struct {
	MaxSize int `json:"max_size" yaml:"max_size" validate:"gte=0"`
}

// DescriberConfig holds configuration for the vision model describer
type DescriberConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Provider string `json:"provider" yaml:"provider" validate:"oneof=ollama llamacpp"`
	URL      string `json:"url" yaml:"url" validate:"omitempty,url"`
	Model    string `json:"model" yaml:"model" validate:"required_if=Enabled true"`
	MaxWords int    `json:"max_words" yaml:"max_words" validate:"gte=0"`
	// TimeoutSeconds bounds one describe call. Zero uses the client default.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format" validate:"oneof=png webp jpg jpeg"`
	OutputDir     string `json:"output_dir" yaml:"output_dir" validate:"required"`
	Quality       int    `json:"quality" yaml:"quality" validate:"gte=1,lte=100"`
	Lossless      bool   `json:"lossless" yaml:"lossless"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	Suffix        string `json:"suffix" yaml:"suffix"`
}

// LogConfig selects the logger flavor
type LogConfig struct {
	Mode  string `json:"mode" yaml:"mode" validate:"oneof=development production"`
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Tracer: TracerConfig{
			MaxRegionSize: 100,
		},
		Cache: CacheConfig{
			NumHashes:           16,
			HashSize:            64,
			SimilarityThreshold: 0.9,
			MaxRecords:          0,
		},
		Canvas: CanvasConfig{
			ModelImageSize:  500,
			UploadImageSize: 1024,
			MaxCanvasArea:   1677721,
			HoverIntervalMs: 100,
		},
		Sticker: StickerConfig{
			MaxSize: 720,
		},
		Describer: DescriberConfig{
			Enabled:  false,
			Provider: "ollama",
			URL:      "http://localhost:11434",
			Model:    "llava",
			MaxWords: 30,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./output",
			Quality:       90,
			Prefix:        "",
			Suffix:        "_sticker",
		},
		Log: LogConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

// isYAML reports whether filename should be read or written as YAML.
func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file. Fields missing
// from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Describer.Enabled && c.Describer.URL == "" {
		return fmt.Errorf("describer.url is required when the describer is enabled")
	}

	if c.Canvas.ModelImageSize > c.Canvas.UploadImageSize {
		return fmt.Errorf("canvas.model_image_size must not exceed canvas.upload_image_size")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "segment-cutout", "config.yaml")
}
