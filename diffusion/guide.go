package diffusion

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// steer matches every denoised point of each sample to its nearest guide
// point, superposes the matched guide points onto the denoised estimate and
// returns (1-strength)·noisy + strength·aligned. Samples are processed
// concurrently; each goroutine writes only its own sample.
func steer(noisy, denoised *tensor.Tensor, guide *align.Matcher, strength float64) (*tensor.Tensor, error) {
	samples, atoms := denoised.Shape[0], denoised.Shape[1]
	uniform := make([]float64, atoms)
	for i := range uniform {
		uniform[i] = 1
	}

	aligned := tensor.New(denoised.Shape...)
	var g errgroup.Group
	for b := 0; b < samples; b++ {
		b := b
		g.Go(func() error {
			pred := align.Points(denoised, b)
			out, err := align.AlignPoints(guide.Nearest(pred), pred, uniform)
			if err != nil {
				return fmt.Errorf("guide sample %d: %w", b, err)
			}
			align.SetPoints(aligned, b, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := tensor.Scale(noisy, 1-strength)
	if err := tensor.AddScaled(out, strength, aligned); err != nil {
		return nil, err
	}
	return out, nil
}
