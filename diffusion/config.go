package diffusion

import (
	"github.com/LiorZ/BoltzDesign1/utils"
)

// ConfigFrom maps a file configuration onto the sampler and loss
// configurations. The file is expected to have passed utils.ValidateConfig.
func ConfigFrom(c *utils.Config) (Config, LossConfig) {
	s := c.Schedule
	cfg := Config{
		Schedule: ScheduleParams{
			SigmaMin:  s.SigmaMin,
			SigmaMax:  s.SigmaMax,
			SigmaData: s.SigmaData,
			Rho:       s.Rho,
			Gamma0:    s.Gamma0,
			GammaMin:  s.GammaMin,
		},
		Steps:                  c.Sampler.Steps,
		NoiseScale:             c.Sampler.NoiseScale,
		StepScale:              c.Sampler.StepScale,
		GuideStrength:          c.Guide.Strength,
		Augment:                c.Sampler.Augment,
		AugmentReflection:      c.Sampler.AugmentReflection,
		AlignmentReverseDiff:   c.Sampler.AlignmentReverseDiff,
		UseInferenceModelCache: c.Sampler.UseInferenceModelCache,
		AccumulateTokenRepr:    c.Sampler.AccumulateTokenRepr,
		ReducedPrecision:       c.Sampler.ReducedPrecision,
	}
	loss := LossConfig{
		SigmaData:        s.SigmaData,
		NucleotideWeight: c.Loss.NucleotideWeight,
		LigandWeight:     c.Loss.LigandWeight,
		SmoothLDDT:       c.Loss.SmoothLDDT,
		Multiplicity:     c.Sampler.Multiplicity,
	}
	return cfg, loss
}
