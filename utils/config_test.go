package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := ValidateConfig(Default()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `sampler:
  steps: 50
  augment_reflection: true
guide:
  structure: ref.pdb
  chain: B
  strength: 0.3
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	want.Sampler.Steps = 50
	want.Sampler.AugmentReflection = true
	want.Guide = GuideConfig{Structure: "ref.pdb", Chain: "B", Strength: 0.3}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sampler:\n  steps: [1, 2\n"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil || cfg.Sampler.Steps != 5 {
		t.Errorf("LoadOrDefault(\"\") = %v, %v", cfg, err)
	}
	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || cfg.Model.Backend != "null" {
		t.Errorf("LoadOrDefault(missing) = %v, %v", cfg, err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Sampler.Seed = 99
	cfg.Model.Backend = "onnx"
	cfg.Model.Path = "score.onnx"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"one step", func(c *Config) { c.Sampler.Steps = 1 }},
		{"zero multiplicity", func(c *Config) { c.Sampler.Multiplicity = 0 }},
		{"inverted sigmas", func(c *Config) { c.Schedule.SigmaMin = 200 }},
		{"strength above one", func(c *Config) { c.Guide.Strength = 1.1 }},
		{"guide without chain", func(c *Config) { c.Guide.Structure = "x.cif"; c.Guide.Chain = "" }},
		{"unknown backend", func(c *Config) { c.Model.Backend = "torch" }},
		{"onnx without path", func(c *Config) { c.Model.Backend = "onnx" }},
		{"zero token dim", func(c *Config) { c.Model.TokenDim = 0 }},
		{"accumulate without weights", func(c *Config) { c.Sampler.AccumulateTokenRepr = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
