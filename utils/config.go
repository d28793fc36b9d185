package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the sampling configuration read from YAML.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Guide    GuideConfig    `yaml:"guide"`
	Loss     LossConfig     `yaml:"loss"`
	Model    ModelConfig    `yaml:"model"`
}

// ScheduleConfig holds the noise schedule. Sigmas are in units of sigma_data.
type ScheduleConfig struct {
	SigmaMin  float64 `yaml:"sigma_min"`
	SigmaMax  float64 `yaml:"sigma_max"`
	SigmaData float64 `yaml:"sigma_data"`
	Rho       float64 `yaml:"rho"`
	Gamma0    float64 `yaml:"gamma_0"`
	GammaMin  float64 `yaml:"gamma_min"`
}

// SamplerConfig holds the step count, noise and step scales, and feature flags.
type SamplerConfig struct {
	Steps                  int     `yaml:"steps"`
	Multiplicity           int     `yaml:"multiplicity"`
	Seed                   uint64  `yaml:"seed"`
	NoiseScale             float64 `yaml:"noise_scale"`
	StepScale              float64 `yaml:"step_scale"`
	Augment                bool    `yaml:"augment"`
	AugmentReflection      bool    `yaml:"augment_reflection"`
	AlignmentReverseDiff   bool    `yaml:"alignment_reverse_diff"`
	UseInferenceModelCache bool    `yaml:"use_inference_model_cache"`
	AccumulateTokenRepr    bool    `yaml:"accumulate_token_repr"`
	ReducedPrecision       bool    `yaml:"reduced_precision"`
}

// GuideConfig names the reference structure the sampler is steered toward.
// An empty Structure disables guidance.
type GuideConfig struct {
	Structure string  `yaml:"structure"`
	Chain     string  `yaml:"chain"`
	Strength  float64 `yaml:"strength"`
}

// LossConfig holds the per-chain-type loss weights.
type LossConfig struct {
	NucleotideWeight float64 `yaml:"nucleotide_weight"`
	LigandWeight     float64 `yaml:"ligand_weight"`
	SmoothLDDT       bool    `yaml:"smooth_lddt"`
}

// ModelConfig selects the score model. Backend is "null" or "onnx".
type ModelConfig struct {
	Backend            string `yaml:"backend"`
	Path               string `yaml:"path"`
	SharedLibrary      string `yaml:"shared_library"`
	AccumulatorWeights string `yaml:"accumulator_weights"`
	Atoms              int    `yaml:"atoms"`
	Tokens             int    `yaml:"tokens"`
	TokenDim           int    `yaml:"token_dim"`
	FourierDim         int    `yaml:"fourier_dim"`
}

// Default returns the configuration of the pretrained model.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			SigmaMin:  0.0004,
			SigmaMax:  160,
			SigmaData: 16,
			Rho:       7,
			Gamma0:    0.8,
			GammaMin:  1.0,
		},
		Sampler: SamplerConfig{
			Steps:        5,
			Multiplicity: 1,
			NoiseScale:   1.003,
			StepScale:    1.5,
			Augment:      true,
		},
		Guide: GuideConfig{
			Chain:    "A",
			Strength: 0.1,
		},
		Loss: LossConfig{
			NucleotideWeight: 5,
			LigandWeight:     10,
			SmoothLDDT:       true,
		},
		Model: ModelConfig{
			Backend:    "null",
			TokenDim:   384,
			FourierDim: 256,
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidateConfig validates the sampling configuration
func ValidateConfig(config *Config) error {
	if config.Sampler.Steps < 2 {
		return fmt.Errorf("steps must be at least 2")
	}

	if config.Sampler.Multiplicity <= 0 {
		return fmt.Errorf("multiplicity must be positive")
	}

	s := config.Schedule
	if s.SigmaData <= 0 || s.SigmaMin <= 0 || s.SigmaMax <= s.SigmaMin {
		return fmt.Errorf("schedule needs 0 < sigma_min < sigma_max and sigma_data > 0")
	}

	if config.Guide.Strength < 0 || config.Guide.Strength > 1 {
		return fmt.Errorf("guide strength must be in [0, 1]")
	}

	if config.Guide.Structure != "" && config.Guide.Chain == "" {
		return fmt.Errorf("guide structure needs a chain")
	}

	switch config.Model.Backend {
	case "null":
	case "onnx":
		if config.Model.Path == "" {
			return fmt.Errorf("onnx backend needs a model path")
		}
	default:
		return fmt.Errorf("model backend must be 'null' or 'onnx'")
	}

	if config.Model.TokenDim <= 0 || config.Model.FourierDim <= 0 {
		return fmt.Errorf("token and fourier dimensions must be positive")
	}

	if config.Sampler.AccumulateTokenRepr && config.Model.AccumulatorWeights == "" {
		return fmt.Errorf("accumulate_token_repr needs accumulator weights")
	}

	return nil
}
