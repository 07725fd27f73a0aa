// Package config handles lastool configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/lascloud/pkg/batch"
)

// Config holds all lastool settings.
type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	Export  ExportConfig  `yaml:"export"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
}

// DatasetConfig holds how LAS files are decoded and batched.
type DatasetConfig struct {
	Paths      []string `yaml:"paths"`       // LAS files or directories
	Reference  string   `yaml:"reference"`   // File the origin is taken from; empty = first that parses
	BatchLimit int      `yaml:"batch_limit"` // Points per batch
	Scale      float32  `yaml:"scale"`
	SwapYZ     bool     `yaml:"swap_yz"` // Reorder axes for Y-up renderers
	Workers    int      `yaml:"workers"` // Files decoded in parallel
}

// ExportConfig holds batch export settings.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// CatalogConfig holds the scan catalog settings.
type CatalogConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			BatchLimit: batch.DefaultLimit,
			Scale:      1,
			SwapYZ:     false,
			Workers:    4,
		},
		Export: ExportConfig{
			OutputDir: "batches",
		},
		Catalog: CatalogConfig{
			Path: "lascloud.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks settings that would make decoding impossible.
func (c *Config) Validate() error {
	if c.Dataset.BatchLimit <= 0 {
		return fmt.Errorf("dataset.batch_limit: %w: %d", batch.ErrInvalidLimit, c.Dataset.BatchLimit)
	}
	if c.Dataset.Scale <= 0 {
		return fmt.Errorf("dataset.scale must be positive, got %v", c.Dataset.Scale)
	}
	if c.Dataset.Workers <= 0 {
		return fmt.Errorf("dataset.workers must be positive, got %d", c.Dataset.Workers)
	}
	return nil
}
