// Package diffusion implements the atom diffusion core: the Karras noise
// schedule, EDM preconditioning, the stochastic Heun sampler with optional
// guidance toward a reference structure, the training loss and the token
// representation accumulator.
package diffusion

import (
	"errors"
	"fmt"
	"math"
)

// ErrTooFewSteps is returned when a schedule of fewer than two steps is
// requested.
var ErrTooFewSteps = errors.New("diffusion: at least 2 sampling steps are required")

// ScheduleParams holds the noise schedule hyperparameters. Sigmas are
// expressed in units of SigmaData.
type ScheduleParams struct {
	SigmaMin  float64
	SigmaMax  float64
	SigmaData float64
	Rho       float64
	Gamma0    float64
	GammaMin  float64
}

// DefaultScheduleParams returns the schedule used by the pretrained model.
func DefaultScheduleParams() ScheduleParams {
	return ScheduleParams{
		SigmaMin:  0.0004,
		SigmaMax:  160.0,
		SigmaData: 16.0,
		Rho:       7,
		Gamma0:    0.8,
		GammaMin:  1.0,
	}
}

// Step is one reverse diffusion step.
type Step struct {
	SigmaPrev float64
	SigmaNext float64
	Gamma     float64
}

// Sigmas returns n+1 noise levels decreasing from SigmaMax·SigmaData to
// SigmaMin·SigmaData along the rho power law, followed by a terminal 0.
func (p ScheduleParams) Sigmas(n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewSteps, n)
	}
	inv := 1 / p.Rho
	hi := math.Pow(p.SigmaMax, inv)
	lo := math.Pow(p.SigmaMin, inv)

	sigmas := make([]float64, n+1)
	for i := 0; i < n; i++ {
		switch i {
		case 0:
			sigmas[i] = p.SigmaMax * p.SigmaData
		case n - 1:
			sigmas[i] = p.SigmaMin * p.SigmaData
		default:
			sigmas[i] = math.Pow(hi+float64(i)/float64(n-1)*(lo-hi), p.Rho) * p.SigmaData
		}
	}
	return sigmas, nil
}

// Gammas returns the stochasticity factor for every sigma.
func (p ScheduleParams) Gammas(sigmas []float64) []float64 {
	gammas := make([]float64, len(sigmas))
	for i, s := range sigmas {
		if s > p.GammaMin {
			gammas[i] = p.Gamma0
		}
	}
	return gammas
}

// Schedule pairs every sigma with its successor and the successor's gamma.
func (p ScheduleParams) Schedule(n int) ([]Step, error) {
	sigmas, err := p.Sigmas(n)
	if err != nil {
		return nil, err
	}
	gammas := p.Gammas(sigmas)
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{SigmaPrev: sigmas[i], SigmaNext: sigmas[i+1], Gamma: gammas[i+1]}
	}
	return steps, nil
}
