package config

import "flag"

// Flags holds the command-line overrides shared by every lastool command.
type Flags struct {
	Config    *string
	Debug     *bool
	LogFile   *string
	Workers   *int
	Limit     *int
	Scale     *float64
	SwapYZ    *bool
	Reference *string
	OutputDir *string
	Catalog   *string
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Config:    fs.String("config", "", "Path to config file"),
		Debug:     fs.Bool("debug", false, "Enable debug logging"),
		LogFile:   fs.String("log", "", "Also write logs to this file"),
		Workers:   fs.Int("workers", 0, "Files decoded in parallel"),
		Limit:     fs.Int("limit", 0, "Points per batch"),
		Scale:     fs.Float64("scale", 0, "Coordinate scale"),
		SwapYZ:    fs.Bool("swap-yz", false, "Swap Y and Z axes"),
		Reference: fs.String("reference", "", "LAS file the origin is computed from"),
		OutputDir: fs.String("out", "", "Batch output directory"),
		Catalog:   fs.String("db", "", "Catalog database path"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.Config
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if *f.Debug {
		cfg.Logging.Level = "debug"
	}
	if *f.LogFile != "" {
		cfg.Logging.LogFile = *f.LogFile
	}
	if *f.Workers > 0 {
		cfg.Dataset.Workers = *f.Workers
	}
	if *f.Limit != 0 {
		cfg.Dataset.BatchLimit = *f.Limit
	}
	if *f.Scale != 0 {
		cfg.Dataset.Scale = float32(*f.Scale)
	}
	if *f.SwapYZ {
		cfg.Dataset.SwapYZ = true
	}
	if *f.Reference != "" {
		cfg.Dataset.Reference = *f.Reference
	}
	if *f.OutputDir != "" {
		cfg.Export.OutputDir = *f.OutputDir
	}
	if *f.Catalog != "" {
		cfg.Catalog.Path = *f.Catalog
	}
}
