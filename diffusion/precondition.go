package diffusion

import (
	"fmt"
	"math"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Preconditioner holds the EDM input, output and skip scalings for a data
// distribution of standard deviation SigmaData.
type Preconditioner struct {
	SigmaData float64
}

// CSkip is the weight of the noisy input in the denoised estimate.
func (p Preconditioner) CSkip(sigma float64) float64 {
	sd2 := p.SigmaData * p.SigmaData
	return sd2 / (sigma*sigma + sd2)
}

// COut scales the score model output.
func (p Preconditioner) COut(sigma float64) float64 {
	return sigma * p.SigmaData / math.Sqrt(p.SigmaData*p.SigmaData+sigma*sigma)
}

// CIn scales the noisy coordinates to unit variance before evaluation.
func (p Preconditioner) CIn(sigma float64) float64 {
	return 1 / math.Sqrt(sigma*sigma+p.SigmaData*p.SigmaData)
}

// CNoise is the noise level embedding fed to the score model.
func (p Preconditioner) CNoise(sigma float64) float64 {
	return 0.25 * math.Log(sigma/p.SigmaData)
}

// LossWeight is the EDM per-sample loss weighting.
func (p Preconditioner) LossWeight(sigma float64) float64 {
	d := sigma * p.SigmaData
	return (sigma*sigma + p.SigmaData*p.SigmaData) / (d * d)
}

// BroadcastSigma repeats a scalar noise level once per sample.
func BroadcastSigma(sigma float64, samples int) []float64 {
	out := make([]float64, samples)
	for i := range out {
		out[i] = sigma
	}
	return out
}

// Denoise evaluates the preconditioned network. sigmas holds one noise level
// per sample of noisy. in carries the context, cache and multiplicity; its
// Coords and Times are filled here. It returns the denoised coordinates and
// the score model's token representation.
func (p Preconditioner) Denoise(model nn.ScoreModel, noisy *tensor.Tensor, sigmas []float64, in nn.ScoreInput) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(noisy.Shape) != 3 || len(sigmas) == 0 || noisy.Shape[0] != len(sigmas) {
		return nil, nil, fmt.Errorf("denoise: %d sigmas for coordinates %v", len(sigmas), noisy.Shape)
	}
	cIn := make([]float64, len(sigmas))
	times := make([]float64, len(sigmas))
	for i, s := range sigmas {
		cIn[i] = p.CIn(s)
		times[i] = p.CNoise(s)
	}
	scaled, err := tensor.ScaleRows(noisy, cIn)
	if err != nil {
		return nil, nil, err
	}
	in.Coords = scaled
	in.Times = times

	out, err := model.Evaluate(&in)
	if err != nil {
		return nil, nil, fmt.Errorf("score model: %w", err)
	}
	if out == nil || out.Update == nil || !tensor.SameShape(out.Update, noisy) {
		return nil, nil, fmt.Errorf("score model: update does not match coordinates %v: %w", noisy.Shape, tensor.ErrShapeMismatch)
	}

	per := len(noisy.Data) / len(sigmas)
	denoised := tensor.New(noisy.Shape...)
	for i, s := range sigmas {
		skip, cOut := p.CSkip(s), p.COut(s)
		lo, hi := i*per, (i+1)*per
		for j := lo; j < hi; j++ {
			denoised.Data[j] = skip*noisy.Data[j] + cOut*out.Update.Data[j]
		}
	}
	return denoised, out.TokenRepr, nil
}
