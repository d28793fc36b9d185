package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

func TestPreconditionerIdentities(t *testing.T) {
	p := Preconditioner{SigmaData: 16}
	for _, sigma := range []float64{1e-4, 0.01, 0.5, 1, 3.7, 16, 100, 2560} {
		// c_in·c_out carries one factor of sigma_data
		want := sigma / (sigma*sigma + 256)
		assert.InDelta(t, 1, p.CIn(sigma)*p.COut(sigma)/p.SigmaData/want, 1e-12, "sigma %g", sigma)
		assert.InDelta(t, 1, p.CSkip(sigma)+p.COut(sigma)*p.COut(sigma)/256, 1e-12, "sigma %g", sigma)
	}
	assert.Equal(t, 1.0, p.CSkip(0))
	assert.Equal(t, 0.0, p.COut(0))
	assert.Equal(t, 0.0, p.CNoise(16))
	assert.InDelta(t, 0.25*math.Log(2), p.CNoise(32), 1e-15)
}

func TestLossWeightAtSigmaData(t *testing.T) {
	for _, sd := range []float64{1, 16, 0.5} {
		p := Preconditioner{SigmaData: sd}
		assert.Equal(t, 2/(sd*sd), p.LossWeight(sd))
	}
}

type constantModel struct {
	value float64
	err   error
	times [][]float64
}

func (m *constantModel) Evaluate(in *nn.ScoreInput) (*nn.ScoreOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.times = append(m.times, in.Times)
	u := tensor.New(in.Coords.Shape...)
	for i := range u.Data {
		u.Data[i] = m.value
	}
	return &nn.ScoreOutput{Update: u, TokenRepr: tensor.New(in.Coords.Shape[0], 1, 2)}, nil
}

func TestDenoisePerSampleSigma(t *testing.T) {
	p := Preconditioner{SigmaData: 16}
	noisy := tensor.New(2, 3, 3)
	for i := range noisy.Data {
		noisy.Data[i] = float64(i) - 8
	}
	model := &constantModel{value: 1}
	sigmas := []float64{4, 40}

	denoised, token, err := p.Denoise(model, noisy, sigmas, nn.ScoreInput{Multiplicity: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, token.Shape)
	require.Len(t, model.times, 1)
	assert.Equal(t, []float64{p.CNoise(4), p.CNoise(40)}, model.times[0])

	for i, v := range noisy.Data {
		s := sigmas[i/9]
		assert.InDelta(t, p.CSkip(s)*v+p.COut(s), denoised.Data[i], 1e-12)
	}
}

func TestDenoiseErrors(t *testing.T) {
	p := Preconditioner{SigmaData: 16}
	noisy := tensor.New(2, 3, 3)

	_, _, err := p.Denoise(&constantModel{}, noisy, []float64{1}, nn.ScoreInput{})
	require.Error(t, err)

	boom := errors.New("boom")
	_, _, err = p.Denoise(&constantModel{err: boom}, noisy, BroadcastSigma(1, 2), nn.ScoreInput{})
	assert.ErrorIs(t, err, boom)

	_, _, err = p.Denoise(badShapeModel{}, noisy, BroadcastSigma(1, 2), nn.ScoreInput{})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

type badShapeModel struct{}

func (badShapeModel) Evaluate(in *nn.ScoreInput) (*nn.ScoreOutput, error) {
	return &nn.ScoreOutput{Update: tensor.New(1, 1, 3)}, nil
}

func TestBroadcastSigma(t *testing.T) {
	assert.Equal(t, []float64{2.5, 2.5, 2.5}, BroadcastSigma(2.5, 3))
}
