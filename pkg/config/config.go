// Package config provides configuration loading and management for crowdcount.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Patch grid parameters shared by preprocessing, indexing and evaluation
	Patch struct {
		// Height and Width are the encoder input size in pixels
		Height int `yaml:"height"`
		Width  int `yaml:"width"`

		// VerticalOverlap and HorizontalOverlap are fractions of the patch
		// extent shared with the next patch
		VerticalOverlap   float64 `yaml:"verticalOverlap"`
		HorizontalOverlap float64 `yaml:"horizontalOverlap"`
	} `yaml:"patch"`

	// Ground truth parameters
	GroundTruth struct {
		// Sigma is the standard deviation of the blurred map
		Sigma float64 `yaml:"sigma"`

		// Prefix is prepended to the image name to find its annotation file
		Prefix string `yaml:"prefix"`

		// Extensions are tried in order when looking for an annotation file
		Extensions []string `yaml:"extensions"`
	} `yaml:"groundTruth"`

	// Dataset layout parameters
	Dataset struct {
		// ImageExtensions selects the input images
		ImageExtensions []string `yaml:"imageExtensions"`

		// JPEGQuality is used when writing patch images
		JPEGQuality int `yaml:"jpegQuality"`
	} `yaml:"dataset"`

	// Processing parameters
	Processing struct {
		// Workers is the number of images processed concurrently
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// LogDir receives one log file per run
		LogDir string `yaml:"logDir"`

		// SavePreviews writes density and point overlay images next to the dataset
		SavePreviews bool `yaml:"savePreviews"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// CLIP ViT input size with half-patch overlap
	cfg.Patch.Height = 224
	cfg.Patch.Width = 224
	cfg.Patch.VerticalOverlap = 0.5
	cfg.Patch.HorizontalOverlap = 0.5

	cfg.GroundTruth.Sigma = 1.0
	cfg.GroundTruth.Prefix = "GT_"
	cfg.GroundTruth.Extensions = []string{".mat", ".json", ".yaml", ".yml"}

	cfg.Dataset.ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	cfg.Dataset.JPEGQuality = 75

	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Output.Verbose = false
	cfg.Output.LogDir = "experiments"
	cfg.Output.SavePreviews = false

	return cfg
}

// Validate rejects configurations the patch grid cannot be built from
func (c *Config) Validate() error {
	if c.Patch.Height <= 0 || c.Patch.Width <= 0 {
		return errors.Errorf("patch size must be positive, got %dx%d", c.Patch.Height, c.Patch.Width)
	}
	if c.Patch.VerticalOverlap < 0 || c.Patch.VerticalOverlap >= 1 ||
		c.Patch.HorizontalOverlap < 0 || c.Patch.HorizontalOverlap >= 1 {
		return errors.Errorf("overlaps must be in [0,1), got %v/%v", c.Patch.VerticalOverlap, c.Patch.HorizontalOverlap)
	}
	if c.GroundTruth.Sigma < 0 {
		return errors.Errorf("sigma must not be negative, got %v", c.GroundTruth.Sigma)
	}
	if len(c.GroundTruth.Extensions) == 0 {
		return errors.New("no ground truth extensions configured")
	}
	if len(c.Dataset.ImageExtensions) == 0 {
		return errors.New("no image extensions configured")
	}
	if c.Dataset.JPEGQuality < 1 || c.Dataset.JPEGQuality > 100 {
		return errors.Errorf("jpeg quality must be in [1,100], got %d", c.Dataset.JPEGQuality)
	}
	if c.Processing.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Processing.Workers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
