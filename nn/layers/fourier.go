package layers

import (
	"math"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// FourierEmbedding maps a scalar time per sample to cos(2π(t·w + b)) with a
// fixed random projection.
type FourierEmbedding struct {
	Proj *Linear // (dim, 1)
}

// NewFourierEmbedding allocates a zero projection of width dim.
func NewFourierEmbedding(dim int) *FourierEmbedding {
	return &FourierEmbedding{Proj: NewLinear(1, dim, true)}
}

// InitNormal draws both the projection weight and bias from draw, matching
// the standard normal initialization of the projection.
func (f *FourierEmbedding) InitNormal(draw func() float64) {
	for i := range f.Proj.W.Data {
		f.Proj.W.Data[i] = draw()
	}
	for i := range f.Proj.B.Data {
		f.Proj.B.Data[i] = draw()
	}
}

// Dim returns the embedding width.
func (f *FourierEmbedding) Dim() int { return f.Proj.OutDim() }

// Embed returns a (len(times), dim) embedding.
func (f *FourierEmbedding) Embed(times []float64) (*tensor.Tensor, error) {
	t := tensor.NewWithData(times)
	t.Shape = []int{len(times), 1}
	proj, err := f.Proj.Forward(t)
	if err != nil {
		return nil, err
	}
	for i, v := range proj.Data {
		proj.Data[i] = math.Cos(2 * math.Pi * v)
	}
	return proj, nil
}
