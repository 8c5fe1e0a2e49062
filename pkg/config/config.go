// Package config provides configuration loading and management for petsirdrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"petsirdrecon/pkg/description"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many goroutines the engine may use
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// List-mode decoding parameters
	ListMode struct {
		// EnableTOF decodes time-of-flight values for every event; the scanner
		// must then carry TOF bin edges for every module type pair
		EnableTOF bool `yaml:"enableTOF"`
	} `yaml:"listMode"`

	// Sensitivity view parameters
	Sensitivity struct {
		// CacheSize is the number of detector-pair weights kept in memory; 0 disables the cache
		CacheSize int `yaml:"cacheSize"`

		// UseScannerEfficiencies takes weights from the scanner description instead of a uniform model
		UseScannerEfficiencies bool `yaml:"useScannerEfficiencies"`
	} `yaml:"sensitivity"`

	// Generator holds the ring scanner used by the generate command
	Generator description.CylinderParams `yaml:"generator"`

	// Output parameters
	Output struct {
		// Verbose prints a per-ring breakdown after a run
		Verbose bool `yaml:"verbose"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"logLevel"`

		// LogFormat is text or json
		LogFormat string `yaml:"logFormat"`

		// LUTDatabase is the database URL for storing canonical layouts; empty disables storage
		LUTDatabase string `yaml:"lutDatabase"`

		// DetectorMap is the path of the hit map image; empty disables it
		DetectorMap string `yaml:"detectorMap"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.ListMode.EnableTOF = false

	cfg.Sensitivity.CacheSize = 4096
	cfg.Sensitivity.UseScannerEfficiencies = false

	cfg.Generator = description.DefaultCylinderParams()

	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"
	cfg.Output.LogFormat = "text"
	cfg.Output.LUTDatabase = ""
	cfg.Output.DetectorMap = ""

	return cfg
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Sensitivity.CacheSize < 0 {
		return fmt.Errorf("sensitivity.cacheSize must not be negative, got %d", c.Sensitivity.CacheSize)
	}
	switch c.Output.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("output.logFormat must be text or json, got %q", c.Output.LogFormat)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
