package layers

import (
	"fmt"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Param is the serializable state of one layer. Bias is nil for layers
// without a bias term.
type Param struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// Linear is a fully-connected layer applied over the last dimension.
type Linear struct {
	W, B *tensor.Tensor // W is (outDim, inDim), B is (outDim) or nil
}

// NewLinear(inDim→outDim, bias) allocates zero weights.
func NewLinear(inDim, outDim int, bias bool) *Linear {
	l := &Linear{W: tensor.New(outDim, inDim)}
	if bias {
		l.B = tensor.New(outDim)
	}
	return l
}

// InitNormal fills W with std * draw() and zeroes the bias.
func (l *Linear) InitNormal(std float64, draw func() float64) {
	for i := range l.W.Data {
		l.W.Data[i] = std * draw()
	}
	if l.B != nil {
		for i := range l.B.Data {
			l.B.Data[i] = 0
		}
	}
}

// InDim returns the input width.
func (l *Linear) InDim() int { return l.W.Shape[1] }

// OutDim returns the output width.
func (l *Linear) OutDim() int { return l.W.Shape[0] }

// Param returns the layer state for weight I/O.
func (l *Linear) Param() Param { return Param{Weight: l.W, Bias: l.B} }

// Forward computes y = x Wᵀ + B for every row of x. The last dimension of x
// must equal InDim; leading dimensions are preserved.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	inDim, outDim := l.InDim(), l.OutDim()
	if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1] != inDim {
		return nil, fmt.Errorf("linear: input shape %v, want last dim %d", x.Shape, inDim)
	}
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = outDim
	out := tensor.New(shape...)

	rows := len(x.Data) / inDim
	for r := 0; r < rows; r++ {
		in := x.Data[r*inDim : (r+1)*inDim]
		for o := 0; o < outDim; o++ {
			w := l.W.Data[o*inDim : (o+1)*inDim]
			sum := 0.0
			for i, v := range in {
				sum += w[i] * v
			}
			if l.B != nil {
				sum += l.B.Data[o]
			}
			out.Data[r*outDim+o] = sum
		}
	}
	return out, nil
}
