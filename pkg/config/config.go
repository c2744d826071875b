// Package config provides configuration loading and management for the
// Poisson blending pipeline. It handles loading configuration from YAML
// files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Solver parameters
	Solver struct {
		// Backend selects the iteration engine: sequential, parallel,
		// opencl or cluster
		Backend string `yaml:"backend"`

		// Method selects the domain formulation: equ (flattened
		// equations over masked pixels) or grid (rectangular crop)
		Method string `yaml:"method"`

		// Gradient selects how source and target gradients mix: max,
		// src or avg
		Gradient string `yaml:"gradient"`

		// Iterations is the total number of Jacobi sweeps to run
		Iterations int `yaml:"iterations"`

		// ReportInterval is how many sweeps run between residual
		// reports and progress snapshots
		ReportInterval int `yaml:"reportInterval"`

		// NumWorkers specifies how many CPU cores the parallel backend
		// uses
		NumWorkers int `yaml:"numWorkers"`

		// TileRows and TileCols shape the blocks the parallel grid
		// backend assigns to workers and the work groups the OpenCL
		// grid backend dispatches
		TileRows int `yaml:"tileRows"`
		TileCols int `yaml:"tileCols"`

		// BlockSize is the OpenCL work-group size for the equ backend
		BlockSize int `yaml:"blockSize"`
	} `yaml:"solver"`

	// Cluster parameters for the distributed backend
	Cluster struct {
		// WorldSize is the total number of ranks including the root
		WorldSize int `yaml:"worldSize"`

		// Addr is the root listen address the worker ranks dial
		Addr string `yaml:"addr"`

		// MinInterval is how many local sweeps each rank runs between
		// state exchanges
		MinInterval int `yaml:"minInterval"`
	} `yaml:"cluster"`

	// Output parameters
	Output struct {
		// SaveProgress determines whether intermediate composites are
		// written at every report interval
		SaveProgress bool `yaml:"saveProgress"`

		// ProgressDir is where intermediate composites go
		ProgressDir string `yaml:"progressDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Solver.Backend = "parallel"
	cfg.Solver.Method = "equ"
	cfg.Solver.Gradient = "max"
	cfg.Solver.Iterations = 5000
	cfg.Solver.ReportInterval = 100
	cfg.Solver.NumWorkers = runtime.NumCPU()
	cfg.Solver.TileRows = 8
	cfg.Solver.TileCols = 8
	cfg.Solver.BlockSize = 64

	cfg.Cluster.WorldSize = 1
	cfg.Cluster.Addr = "127.0.0.1:23333"
	cfg.Cluster.MinInterval = 100

	cfg.Output.SaveProgress = false
	cfg.Output.ProgressDir = "progress"
	cfg.Output.Verbose = true

	return cfg
}

// Validate reports the first configuration value the pipeline cannot run
// with.
func (cfg *Config) Validate() error {
	switch cfg.Solver.Backend {
	case "sequential", "parallel", "opencl", "cluster":
	default:
		return fmt.Errorf("unknown backend %q", cfg.Solver.Backend)
	}
	switch cfg.Solver.Method {
	case "equ", "grid":
	default:
		return fmt.Errorf("unknown method %q", cfg.Solver.Method)
	}
	if cfg.Solver.Iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", cfg.Solver.Iterations)
	}
	if cfg.Solver.ReportInterval < 1 {
		return fmt.Errorf("report interval must be positive, got %d", cfg.Solver.ReportInterval)
	}
	if cfg.Solver.Backend == "cluster" {
		if cfg.Cluster.WorldSize < 1 {
			return fmt.Errorf("world size must be at least 1, got %d", cfg.Cluster.WorldSize)
		}
		if cfg.Solver.Method == "grid" {
			return fmt.Errorf("the cluster backend only supports the equ method")
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
