package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigMissingFile verifies that a nonexistent path yields the
// defaults rather than an error.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Solver.Backend != "parallel" || cfg.Solver.Gradient != "max" {
		t.Errorf("defaults not applied: backend=%q gradient=%q", cfg.Solver.Backend, cfg.Solver.Gradient)
	}
	if cfg.Solver.BlockSize != 64 {
		t.Errorf("default block size is %d, want 64", cfg.Solver.BlockSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

// TestConfigRoundTrip saves a modified configuration and loads it back.
func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "fpie.yaml")
	cfg := DefaultConfig()
	cfg.Solver.Backend = "opencl"
	cfg.Solver.Iterations = 1234
	cfg.Solver.BlockSize = 128
	cfg.Output.SaveProgress = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file missing after save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Solver.Backend != "opencl" || loaded.Solver.Iterations != 1234 || !loaded.Output.SaveProgress {
		t.Errorf("round trip lost values: %+v", loaded.Solver)
	}
	if loaded.Solver.BlockSize != 128 {
		t.Errorf("round trip lost block size: %d", loaded.Solver.BlockSize)
	}
}

// TestValidateRejectsBadValues covers the error paths of Validate.
func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Solver.Backend = "cuda" }},
		{"unknown method", func(c *Config) { c.Solver.Method = "mesh" }},
		{"zero iterations", func(c *Config) { c.Solver.Iterations = 0 }},
		{"zero report interval", func(c *Config) { c.Solver.ReportInterval = 0 }},
		{"cluster grid", func(c *Config) {
			c.Solver.Backend = "cluster"
			c.Solver.Method = "grid"
		}},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted invalid config", tc.name)
		}
	}
}
