package diffusion

import (
	"fmt"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Chain type ids of the featurizer's mol_type feature.
const (
	ChainProtein    = 0
	ChainDNA        = 1
	ChainRNA        = 2
	ChainNonPolymer = 3
)

// LossConfig holds the loss hyperparameters.
type LossConfig struct {
	SigmaData        float64
	NucleotideWeight float64
	LigandWeight     float64
	SmoothLDDT       bool
	Multiplicity     int
}

// DefaultLossConfig returns the training defaults.
func DefaultLossConfig() LossConfig {
	return LossConfig{
		SigmaData:        16,
		NucleotideWeight: 5,
		LigandWeight:     10,
		SmoothLDDT:       true,
		Multiplicity:     1,
	}
}

// LossInput carries the tensors the loss reads. Per-sample tensors have
// samples = batch * multiplicity rows; per-structure features have batch
// rows and are repeated.
type LossInput struct {
	Denoised     *tensor.Tensor // (samples, atoms, 3)
	Sigmas       []float64      // one per sample
	AlignedTruth *tensor.Tensor // augmented ground truth, (samples, atoms, 3)
	Truth        *tensor.Tensor // raw ground truth, (samples, atoms, 3)
	ResolvedMask *tensor.Tensor // (batch, atoms)
	AtomToToken  *tensor.Tensor // one-hot (batch, atoms, tokens)
	MolType      *tensor.Tensor // (batch, tokens)
}

// Loss is the total loss and its terms.
type Loss struct {
	Total      float64
	MSE        float64
	SmoothLDDT float64
}

// AtomTypes maps every atom to the chain type of its token, (batch, atoms).
func AtomTypes(atomToToken, molType *tensor.Tensor) (*tensor.Tensor, error) {
	if len(atomToToken.Shape) != 3 || len(molType.Shape) != 2 ||
		atomToToken.Shape[0] != molType.Shape[0] || atomToToken.Shape[2] != molType.Shape[1] {
		return nil, fmt.Errorf("atom types: atom_to_token %v and mol_type %v disagree", atomToToken.Shape, molType.Shape)
	}
	batch, atoms, tokens := atomToToken.Shape[0], atomToToken.Shape[1], atomToToken.Shape[2]
	out := tensor.New(batch, atoms)
	for b := 0; b < batch; b++ {
		mt := molType.Data[b*tokens : (b+1)*tokens]
		for a := 0; a < atoms; a++ {
			row := atomToToken.Data[(b*atoms+a)*tokens : (b*atoms+a+1)*tokens]
			sum := 0.0
			for k, v := range row {
				sum += v * mt[k]
			}
			// truncation matches the integer cast of the featurizer
			out.Data[b*atoms+a] = float64(int(sum))
		}
	}
	return out, nil
}

func isNucleotide(t float64) bool { return t == ChainDNA || t == ChainRNA }

// ComputeLoss returns the sigma-weighted MSE between the denoised
// coordinates and the ground truth superposed onto them, plus the smooth
// LDDT term when enabled.
func ComputeLoss(in LossInput, cfg LossConfig) (*Loss, error) {
	mult := cfg.Multiplicity
	if mult < 1 {
		mult = 1
	}
	d := in.Denoised
	if d == nil || len(d.Shape) != 3 || d.Shape[2] != 3 {
		return nil, fmt.Errorf("loss: denoised coordinates must be (samples, atoms, 3)")
	}
	samples, atoms := d.Shape[0], d.Shape[1]
	if in.AlignedTruth == nil || !tensor.SameShape(d, in.AlignedTruth) {
		return nil, fmt.Errorf("loss: aligned truth: %w", tensor.ErrShapeMismatch)
	}
	if len(in.Sigmas) != samples {
		return nil, fmt.Errorf("loss: %d sigmas for %d samples", len(in.Sigmas), samples)
	}
	if in.ResolvedMask == nil || len(in.ResolvedMask.Shape) != 2 || in.ResolvedMask.Shape[0]*mult != samples || in.ResolvedMask.Shape[1] != atoms {
		return nil, fmt.Errorf("loss: resolved mask must be (%d, %d)", samples/mult, atoms)
	}

	atomType, err := AtomTypes(in.AtomToToken, in.MolType)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	if atomType.Shape[1] != atoms {
		return nil, fmt.Errorf("loss: atom_to_token covers %d atoms, want %d", atomType.Shape[1], atoms)
	}
	typeMult := tensor.RepeatInterleave(atomType, mult)
	mask := tensor.RepeatInterleave(in.ResolvedMask, mult)

	weights := tensor.New(samples, atoms)
	for i, t := range typeMult.Data {
		w := 1.0
		if isNucleotide(t) {
			w += cfg.NucleotideWeight
		}
		if t == ChainNonPolymer {
			w += cfg.LigandWeight
		}
		weights.Data[i] = w
	}

	truth, err := align.WeightedRigidAlign(in.AlignedTruth, d, weights, mask)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}

	p := Preconditioner{SigmaData: cfg.SigmaData}
	mse := 0.0
	for b := 0; b < samples; b++ {
		num, den := 0.0, 0.0
		for a := 0; a < atoms; a++ {
			i := b*atoms + a
			wm := weights.Data[i] * mask.Data[i]
			sq := 0.0
			for k := 0; k < 3; k++ {
				diff := d.Data[i*3+k] - truth.Data[i*3+k]
				sq += diff * diff
			}
			num += sq * wm
			den += 3 * wm
		}
		mse += num / den * p.LossWeight(in.Sigmas[b])
	}
	mse /= float64(samples)

	out := &Loss{Total: mse, MSE: mse}
	if cfg.SmoothLDDT {
		if in.Truth == nil {
			return nil, fmt.Errorf("loss: smooth lddt needs the raw ground truth")
		}
		nuc := tensor.New(atomType.Shape...)
		for i, t := range atomType.Data {
			if isNucleotide(t) {
				nuc.Data[i] = 1
			}
		}
		lddt, err := nn.SmoothLDDTLoss(d, in.Truth, nuc, in.ResolvedMask, mult)
		if err != nil {
			return nil, fmt.Errorf("loss: %w", err)
		}
		out.SmoothLDDT = lddt
		out.Total += lddt
	}
	return out, nil
}
