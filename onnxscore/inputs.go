// Package onnxscore runs an exported score model through ONNX Runtime.
//
// The session itself needs the onnxruntime shared library and is only built
// with the "ort" tag; input binding and conversion are plain Go.
package onnxscore

import (
	"fmt"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Graph input and output names of the exported score model.
const (
	InputCoords    = "r_noisy"
	InputTimes     = "times"
	InputSInputs   = "s_inputs"
	InputSTrunk    = "s_trunk"
	InputZTrunk    = "z_trunk"
	InputRelPos    = "relative_position_encoding"
	OutputUpdate   = "r_update"
	OutputTokenRep = "token_a"
)

// bindInputs resolves every graph input name to a tensor of in. Names the
// conditioning does not know are looked up in Context.Feats.
func bindInputs(names []string, in *nn.ScoreInput) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(names))
	for i, name := range names {
		var x *tensor.Tensor
		switch name {
		case InputCoords:
			x = in.Coords
		case InputTimes:
			x = &tensor.Tensor{Data: in.Times, Shape: []int{len(in.Times)}}
		default:
			x = contextTensor(in.Context, name)
		}
		if x == nil {
			return nil, fmt.Errorf("onnxscore: no value for graph input %q", name)
		}
		out[i] = x
	}
	return out, nil
}

func contextTensor(c *nn.Conditioning, name string) *tensor.Tensor {
	if c == nil {
		return nil
	}
	switch name {
	case InputSInputs:
		return c.SInputs
	case InputSTrunk:
		return c.STrunk
	case InputZTrunk:
		return c.ZTrunk
	case InputRelPos:
		return c.RelPosEncoding
	}
	return c.Feats[name]
}

// createValues converts every bound tensor with create. On failure it returns
// the values created so far, so the caller can release exactly those.
func createValues[V any](names []string, bound []*tensor.Tensor, create func(*tensor.Tensor) (V, error)) ([]V, error) {
	values := make([]V, 0, len(bound))
	for i, x := range bound {
		v, err := create(x)
		if err != nil {
			return values, fmt.Errorf("onnxscore: input %q: %w", names[i], err)
		}
		values = append(values, v)
	}
	return values, nil
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}

func fromFloat32(data []float32, shape []int64) (*tensor.Tensor, error) {
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return tensor.FromData(values, dims...)
}
