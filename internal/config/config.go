// Package config loads the server and pipeline settings from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full deployment configuration.
type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		MaxUploadMB    int      `yaml:"maxUploadMB"`
	} `yaml:"server"`

	Analysis struct {
		// MaxPixels bounds accepted image resolution.
		MaxPixels int `yaml:"maxPixels"`

		// BinCount is the histogram resolution.
		BinCount int `yaml:"binCount"`

		// DenoiseSigma is the Gaussian denoise radius before thresholding.
		DenoiseSigma float64 `yaml:"denoiseSigma"`

		// IncludeBorderPores keeps pores cut by the image frame.
		IncludeBorderPores bool `yaml:"includeBorderPores"`
	} `yaml:"analysis"`

	Results struct {
		// Capacity bounds how many completed analyses are retained for
		// download before the oldest is evicted.
		Capacity int `yaml:"capacity"`
	} `yaml:"results"`

	// CalibrationFile optionally replaces the built-in calibration table.
	CalibrationFile string `yaml:"calibrationFile"`

	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration the server runs with when no file is
// given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 5328
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	cfg.Server.MaxUploadMB = 32
	cfg.Analysis.MaxPixels = 2560 * 1920
	cfg.Analysis.BinCount = 100
	cfg.Analysis.DenoiseSigma = 1.0
	cfg.Results.Capacity = 50
	cfg.LogLevel = "info"
	return cfg
}

// Load reads the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables. A .env file in the working
// directory is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if v := os.Getenv("POROMET_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POROMET_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("POROMET_CALIBRATION_FILE"); v != "" {
		cfg.CalibrationFile = v
	}
	if v := os.Getenv("POROMET_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("maxUploadMB must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Analysis.BinCount <= 0 {
		return fmt.Errorf("binCount must be positive, got %d", c.Analysis.BinCount)
	}
	if c.Analysis.DenoiseSigma < 0 {
		return fmt.Errorf("denoiseSigma must be non-negative, got %g", c.Analysis.DenoiseSigma)
	}
	if c.Results.Capacity <= 0 {
		return fmt.Errorf("results capacity must be positive, got %d", c.Results.Capacity)
	}
	return nil
}
