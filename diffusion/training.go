package diffusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// NoiseDistribution draws training noise levels from a log-normal
// distribution: sigma = SigmaData·exp(PMean + PStd·N(0,1)).
type NoiseDistribution struct {
	SigmaData float64
	PMean     float64
	PStd      float64
}

// DefaultNoiseDistribution returns the training defaults.
func DefaultNoiseDistribution() NoiseDistribution {
	return NoiseDistribution{SigmaData: 16, PMean: -1.2, PStd: 1.5}
}

// Sample draws n noise levels.
func (d NoiseDistribution) Sample(noise *Noise, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.SigmaData * math.Exp(d.PMean+d.PStd*noise.Normal())
	}
	return out
}

// TrainingConfig holds the options of a training forward pass.
type TrainingConfig struct {
	Noise NoiseDistribution
	// CoordinateAugmentation applies a random rigid motion to the ground
	// truth after recentering.
	CoordinateAugmentation bool
	// SynchronizeSigmas shares one noise level between the multiplicity
	// copies of a structure.
	SynchronizeSigmas bool
}

// DefaultTrainingConfig returns the training defaults.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{Noise: DefaultNoiseDistribution(), CoordinateAugmentation: true}
}

// TrainingInput is one training batch.
type TrainingInput struct {
	Coords       *tensor.Tensor // ground truth, (batch, atoms, 3)
	AtomMask     *tensor.Tensor // (batch, atoms)
	Context      *nn.Conditioning
	Multiplicity int
	Seed         uint64
}

// TrainingOutput feeds ComputeLoss.
type TrainingOutput struct {
	Noised       *tensor.Tensor
	Denoised     *tensor.Tensor
	Sigmas       []float64
	AlignedTruth *tensor.Tensor
	// Truth is the ground truth repeated per sample, before augmentation.
	Truth *tensor.Tensor
}

// LossInput assembles the loss tensors from this pass and the featurizer
// outputs.
func (o *TrainingOutput) LossInput(resolvedMask, atomToToken, molType *tensor.Tensor) LossInput {
	return LossInput{
		Denoised:     o.Denoised,
		Sigmas:       o.Sigmas,
		AlignedTruth: o.AlignedTruth,
		Truth:        o.Truth,
		ResolvedMask: resolvedMask,
		AtomToToken:  atomToToken,
		MolType:      molType,
	}
}

// TrainingForward noises the ground truth at randomly drawn levels and
// denoises it once. Draw order: sigmas, augmentation, noise.
func TrainingForward(model nn.ScoreModel, in TrainingInput, cfg TrainingConfig) (*TrainingOutput, error) {
	if model == nil {
		return nil, errors.New("training: nil score model")
	}
	if in.Coords == nil || len(in.Coords.Shape) != 3 || in.Coords.Shape[2] != 3 {
		return nil, errors.New("training: coordinates must be (batch, atoms, 3)")
	}
	if in.AtomMask == nil || len(in.AtomMask.Shape) != 2 || in.AtomMask.Shape[0] != in.Coords.Shape[0] || in.AtomMask.Shape[1] != in.Coords.Shape[1] {
		return nil, errors.New("training: atom mask must match coordinates")
	}
	mult := in.Multiplicity
	if mult < 1 {
		mult = 1
	}
	batch := in.Coords.Shape[0]
	samples := batch * mult
	noise := NewNoise(in.Seed)

	var sigmas []float64
	if cfg.SynchronizeSigmas {
		per := cfg.Noise.Sample(noise, batch)
		sigmas = make([]float64, 0, samples)
		for _, s := range per {
			for r := 0; r < mult; r++ {
				sigmas = append(sigmas, s)
			}
		}
	} else {
		sigmas = cfg.Noise.Sample(noise, samples)
	}

	truth := tensor.RepeatInterleave(in.Coords, mult)
	mask := tensor.RepeatInterleave(in.AtomMask, mult)

	augmented := truth.Clone()
	var aug *Augmentation
	if cfg.CoordinateAugmentation {
		aug = DrawAugmentation(noise, samples, false)
	}
	if err := CenterAugment(augmented, mask, aug, nil); err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}

	eps, err := tensor.ScaleRows(noise.Gaussian(augmented.Shape...), sigmas)
	if err != nil {
		return nil, err
	}
	noised, err := tensor.Add(augmented, eps)
	if err != nil {
		return nil, err
	}

	p := Preconditioner{SigmaData: cfg.Noise.SigmaData}
	denoised, _, err := p.Denoise(model, noised, sigmas, nn.ScoreInput{Context: in.Context, Multiplicity: mult})
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	return &TrainingOutput{
		Noised:       noised,
		Denoised:     denoised,
		Sigmas:       sigmas,
		AlignedTruth: augmented,
		Truth:        truth,
	}, nil
}
