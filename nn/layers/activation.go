package layers

import (
	"fmt"
	"math"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Sigmoid applies 1/(1+exp(-x)) element-wise.
type Sigmoid struct{}

func (Sigmoid) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = sigmoid(v)
	}
	return out, nil
}

// SwiGLU splits the last dimension in half into (x, gates) and returns
// silu(gates) * x.
type SwiGLU struct{}

func (SwiGLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1]%2 != 0 {
		return nil, fmt.Errorf("swiglu: last dimension of %v must be even", x.Shape)
	}
	dim := x.Shape[len(x.Shape)-1]
	half := dim / 2
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = half
	out := tensor.New(shape...)

	rows := len(x.Data) / dim
	for r := 0; r < rows; r++ {
		for i := 0; i < half; i++ {
			v := x.Data[r*dim+i]
			gate := x.Data[r*dim+half+i]
			out.Data[r*half+i] = silu(gate) * v
		}
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func silu(x float64) float64 {
	return x * sigmoid(x)
}
