package layers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// LayerNorm normalizes over the last dimension. Weight and Bias are optional.
type LayerNorm struct {
	Dim    int
	Eps    float64
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// NewLayerNorm returns a LayerNorm with a unit weight and a zero bias, each
// present only when requested.
func NewLayerNorm(dim int, weight, bias bool) *LayerNorm {
	ln := &LayerNorm{Dim: dim, Eps: 1e-5}
	if weight {
		ln.Weight = tensor.New(dim)
		for i := range ln.Weight.Data {
			ln.Weight.Data[i] = 1
		}
	}
	if bias {
		ln.Bias = tensor.New(dim)
	}
	return ln
}

// Param returns the layer state for weight I/O.
func (n *LayerNorm) Param() Param { return Param{Weight: n.Weight, Bias: n.Bias} }

// Forward normalizes every row of x to zero mean and unit variance.
func (n *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	dim := n.Dim
	if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1] != dim {
		return nil, fmt.Errorf("layernorm: input shape %v, want last dim %d", x.Shape, dim)
	}
	out := tensor.New(x.Shape...)
	rows := len(x.Data) / dim
	for r := 0; r < rows; r++ {
		in := x.Data[r*dim : (r+1)*dim]
		dst := out.Data[r*dim : (r+1)*dim]

		mean := floats.Sum(in) / float64(dim)
		variance := 0.0
		for _, v := range in {
			d := v - mean
			variance += d * d
		}
		variance /= float64(dim)

		invStd := 1.0 / math.Sqrt(variance+n.Eps)
		for i, v := range in {
			y := (v - mean) * invStd
			if n.Weight != nil {
				y *= n.Weight.Data[i]
			}
			if n.Bias != nil {
				y += n.Bias.Data[i]
			}
			dst[i] = y
		}
	}
	return out, nil
}
