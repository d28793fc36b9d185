package nn

import (
	"fmt"
	"math"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Inclusion radii for the smooth LDDT loss, in Angstrom.
const (
	NucleicAcidCutoff = 30.0
	OtherCutoff       = 15.0
)

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// SmoothLDDTLoss returns 1 - mean smooth LDDT between pred and truth.
//
// pred and truth are (samples, atoms, 3). isNucleotide and coordsMask are
// (batch, atoms) with samples = batch * multiplicity; they are repeated
// per sample. Pairs whose first atom is a nucleotide use the nucleic acid
// cutoff, all others the shorter one. Only pairs of two resolved, distinct
// atoms are scored.
func SmoothLDDTLoss(pred, truth, isNucleotide, coordsMask *tensor.Tensor, multiplicity int) (float64, error) {
	if !tensor.SameShape(pred, truth) || len(pred.Shape) != 3 || pred.Shape[2] != 3 {
		return 0, fmt.Errorf("smooth lddt: prediction %v and truth %v must be (samples, atoms, 3)", pred.Shape, truth.Shape)
	}
	samples, atoms := pred.Shape[0], pred.Shape[1]
	if multiplicity < 1 || samples%multiplicity != 0 {
		return 0, fmt.Errorf("smooth lddt: %d samples not divisible by multiplicity %d", samples, multiplicity)
	}
	batch := samples / multiplicity
	for _, m := range []*tensor.Tensor{isNucleotide, coordsMask} {
		if len(m.Shape) != 2 || m.Shape[0] != batch || m.Shape[1] != atoms {
			return 0, fmt.Errorf("smooth lddt: mask shape %v, want [%d %d]", m.Shape, batch, atoms)
		}
	}

	dist := func(x []float64, i, j int) float64 {
		dx := x[i*3] - x[j*3]
		dy := x[i*3+1] - x[j*3+1]
		dz := x[i*3+2] - x[j*3+2]
		return math.Sqrt(dx*dx + dy*dy + dz*dz)
	}

	total := 0.0
	for s := 0; s < samples; s++ {
		b := s / multiplicity
		p := pred.Data[s*atoms*3 : (s+1)*atoms*3]
		tr := truth.Data[s*atoms*3 : (s+1)*atoms*3]
		nuc := isNucleotide.Data[b*atoms : (b+1)*atoms]
		mask := coordsMask.Data[b*atoms : (b+1)*atoms]

		num, den := 0.0, 0.0
		for i := 0; i < atoms; i++ {
			if mask[i] == 0 {
				continue
			}
			for j := 0; j < atoms; j++ {
				if i == j || mask[j] == 0 {
					continue
				}
				td := dist(tr, i, j)
				w := (1 - nuc[i]) * indicator(td < OtherCutoff)
				w += nuc[i] * indicator(td < NucleicAcidCutoff)
				w *= mask[i] * mask[j]
				if w == 0 {
					continue
				}
				diff := math.Abs(td - dist(p, i, j))
				eps := (sigmoid(0.5-diff) + sigmoid(1.0-diff) + sigmoid(2.0-diff) + sigmoid(4.0-diff)) / 4.0
				num += eps * w
				den += w
			}
		}
		total += num / math.Max(den, 1)
	}
	return 1.0 - total/float64(samples), nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
