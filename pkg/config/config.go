// Package config provides configuration loading and management for channeldiffusion.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides a config value.
const EnvPrefix = "CHANNELDIFFUSION_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many boxes or frames are processed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// LinesPerPixelLength is the number of transects per pixel of channel length
		LinesPerPixelLength float64 `yaml:"linesPerPixelLength"`

		// SamplesPerPixel is the sampling density along each transect
		SamplesPerPixel float64 `yaml:"samplesPerPixel"`

		// Kernel selects how sub-pixel samples are weighted (bilinear or nearest)
		Kernel string `yaml:"kernel"`

		// PreviewLines is the number of lines drawn per box in a preview
		PreviewLines int `yaml:"previewLines"`
	} `yaml:"processing"`

	// Analysis parameters for the diffusion fit
	Analysis struct {
		// LengthPerPixel converts pixels to micrometres
		LengthPerPixel float64 `yaml:"lengthPerPixel"`

		// SecondsPerFrame is the acquisition interval
		SecondsPerFrame float64 `yaml:"secondsPerFrame"`
	} `yaml:"analysis"`

	// Output parameters
	Output struct {
		// Dir is where profiles, previews and fit results are written
		Dir string `yaml:"dir"`

		// SaveIntermediaryResults writes heatmaps and previews during a run
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogDir mirrors log output into files when set
		LogDir string `yaml:"logDir"`

		// PlotRows is the number of rows in the per-frame profile grid
		PlotRows int `yaml:"plotRows"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.LinesPerPixelLength = 1.0
	cfg.Processing.SamplesPerPixel = 1.0
	cfg.Processing.Kernel = "bilinear"
	cfg.Processing.PreviewLines = 5

	cfg.Analysis.LengthPerPixel = 1.0
	cfg.Analysis.SecondsPerFrame = 2.0

	cfg.Output.Dir = "results"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.Verbose = true
	cfg.Output.PlotRows = 2

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration.
// Environment overrides are applied last.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overwriting variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides values from CHANNELDIFFUSION_* environment variables.
func (c *Config) ApplyEnv() error {
	var err error
	if c.Processing.NumWorkers, err = getEnvAsInt("WORKERS", c.Processing.NumWorkers); err != nil {
		return err
	}
	if c.Processing.LinesPerPixelLength, err = getEnvAsFloat("LINES_PER_PIXEL", c.Processing.LinesPerPixelLength); err != nil {
		return err
	}
	if c.Processing.SamplesPerPixel, err = getEnvAsFloat("SAMPLES_PER_PIXEL", c.Processing.SamplesPerPixel); err != nil {
		return err
	}
	c.Processing.Kernel = getEnv("KERNEL", c.Processing.Kernel)
	if c.Processing.PreviewLines, err = getEnvAsInt("PREVIEW_LINES", c.Processing.PreviewLines); err != nil {
		return err
	}
	if c.Analysis.LengthPerPixel, err = getEnvAsFloat("LENGTH_PER_PIXEL", c.Analysis.LengthPerPixel); err != nil {
		return err
	}
	if c.Analysis.SecondsPerFrame, err = getEnvAsFloat("SECONDS_PER_FRAME", c.Analysis.SecondsPerFrame); err != nil {
		return err
	}
	c.Output.Dir = getEnv("OUTPUT_DIR", c.Output.Dir)
	c.Output.LogDir = getEnv("LOG_DIR", c.Output.LogDir)
	if c.Output.Verbose, err = getEnvAsBool("VERBOSE", c.Output.Verbose); err != nil {
		return err
	}
	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if !(c.Processing.LinesPerPixelLength > 0) {
		return fmt.Errorf("linesPerPixelLength must be positive, got %v", c.Processing.LinesPerPixelLength)
	}
	if !(c.Processing.SamplesPerPixel > 0) {
		return fmt.Errorf("samplesPerPixel must be positive, got %v", c.Processing.SamplesPerPixel)
	}
	if c.Processing.PreviewLines < 1 {
		return fmt.Errorf("previewLines must be at least 1, got %d", c.Processing.PreviewLines)
	}
	if !(c.Analysis.LengthPerPixel > 0) || !(c.Analysis.SecondsPerFrame > 0) {
		return fmt.Errorf("lengthPerPixel and secondsPerFrame must be positive")
	}
	switch strings.ToLower(c.Processing.Kernel) {
	case "", "bilinear", "nearest", "nearest-neighbor", "nearest-neighbour":
	default:
		return fmt.Errorf("unknown kernel %q", c.Processing.Kernel)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return v, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return v, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return v, nil
}
