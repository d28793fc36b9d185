package diffusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

func TestNoiseDistribution(t *testing.T) {
	d := DefaultNoiseDistribution()
	got := d.Sample(NewNoise(17), 4)

	ref := NewNoise(17)
	for i, s := range got {
		assert.Equal(t, 16*math.Exp(-1.2+1.5*ref.Normal()), s, "draw %d", i)
		assert.Greater(t, s, 0.0)
	}
}

func TestTrainingForward(t *testing.T) {
	truth := cloudTensor(2, tetra)
	in := TrainingInput{
		Coords:       truth,
		AtomMask:     onesMask(2, len(tetra)),
		Multiplicity: 3,
		Seed:         5,
	}
	model := &nn.NullScoreModel{TokenDim: 2, NumTokens: 1}
	out, err := TrainingForward(model, in, DefaultTrainingConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{6, 5, 3}, out.Noised.Shape)
	assert.Equal(t, out.Noised.Shape, out.Denoised.Shape)
	require.Len(t, out.Sigmas, 6)
	assert.Equal(t, 1, model.Calls)

	p := Preconditioner{SigmaData: 16}
	for i, v := range out.Noised.Data {
		assert.InDelta(t, p.CSkip(out.Sigmas[i/15])*v, out.Denoised.Data[i], 1e-9)
	}
	// every copy of the ground truth is a rigid motion of the original
	for b := 0; b < 6; b++ {
		pts := align.Points(out.AlignedTruth, b)
		assert.InDelta(t, r3.Norm(r3.Sub(tetra[0], tetra[3])), r3.Norm(r3.Sub(pts[0], pts[3])), 1e-9)
	}
	assert.Equal(t, truth.Data[:15], out.Truth.Data[:15])
	assert.Equal(t, truth.Data[15:], out.Truth.Data[75:])
}

func TestTrainingForwardSynchronizedSigmas(t *testing.T) {
	cfg := DefaultTrainingConfig()
	cfg.SynchronizeSigmas = true
	cfg.CoordinateAugmentation = false
	in := TrainingInput{
		Coords:       cloudTensor(2, tetra),
		AtomMask:     onesMask(2, len(tetra)),
		Multiplicity: 2,
		Seed:         5,
	}
	out, err := TrainingForward(&nn.NullScoreModel{TokenDim: 2, NumTokens: 1}, in, cfg)
	require.NoError(t, err)
	require.Len(t, out.Sigmas, 4)
	assert.Equal(t, out.Sigmas[0], out.Sigmas[1])
	assert.Equal(t, out.Sigmas[2], out.Sigmas[3])
	assert.NotEqual(t, out.Sigmas[0], out.Sigmas[2])

	// without augmentation the truth is only recentered
	c := maskedCentroids(out.AlignedTruth, onesMask(4, len(tetra)))
	for _, v := range c {
		assert.InDelta(t, 0, v.X*v.X+v.Y*v.Y+v.Z*v.Z, 1e-20)
	}

	a2t, mt := lossFeatures(ChainProtein, ChainProtein, ChainProtein, ChainProtein, ChainProtein)
	a2t = &tensor.Tensor{Data: append(a2t.Data, a2t.Data...), Shape: []int{2, 5, 5}}
	mt = &tensor.Tensor{Data: append(mt.Data, mt.Data...), Shape: []int{2, 5}}
	cfg2 := DefaultLossConfig()
	cfg2.Multiplicity = 2
	loss, err := ComputeLoss(out.LossInput(onesMask(2, len(tetra)), a2t, mt), cfg2)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(loss.Total))
	assert.Greater(t, loss.MSE, 0.0)
}

func TestTrainingForwardErrors(t *testing.T) {
	model := &nn.NullScoreModel{}
	_, err := TrainingForward(nil, TrainingInput{}, DefaultTrainingConfig())
	require.Error(t, err)
	_, err = TrainingForward(model, TrainingInput{Coords: cloudTensor(1, tetra)}, DefaultTrainingConfig())
	require.Error(t, err)
	_, err = TrainingForward(model, TrainingInput{Coords: cloudTensor(1, tetra), AtomMask: onesMask(1, 2)}, DefaultTrainingConfig())
	require.Error(t, err)
}
