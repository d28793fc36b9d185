package layers

import (
	"fmt"

	"github.com/LiorZ/BoltzDesign1/nn"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// AdaLN is a layer norm whose scale and shift are predicted from a
// conditioning signal.
type AdaLN struct {
	ANorm  *LayerNorm // no affine parameters
	SNorm  *LayerNorm // weight only
	SScale *Linear
	SBias  *Linear // no bias
}

// NewAdaLN builds an AdaLN for inputs of width dim conditioned on width dimCond.
func NewAdaLN(dim, dimCond int) *AdaLN {
	return &AdaLN{
		ANorm:  NewLayerNorm(dim, false, false),
		SNorm:  NewLayerNorm(dimCond, true, false),
		SScale: NewLinear(dimCond, dim, true),
		SBias:  NewLinear(dimCond, dim, false),
	}
}

// Forward returns sigmoid(SScale(norm(s))) * norm(a) + SBias(norm(s)).
func (l *AdaLN) Forward(a, s *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := l.ANorm.Forward(a)
	if err != nil {
		return nil, err
	}
	s, err = l.SNorm.Forward(s)
	if err != nil {
		return nil, err
	}
	scale, err := l.SScale.Forward(s)
	if err != nil {
		return nil, err
	}
	shift, err := l.SBias.Forward(s)
	if err != nil {
		return nil, err
	}
	if !tensor.SameShape(a, scale) {
		return nil, fmt.Errorf("adaln: input %v and conditioning %v disagree", a.Shape, scale.Shape)
	}
	for i := range a.Data {
		a.Data[i] = sigmoid(scale.Data[i])*a.Data[i] + shift.Data[i]
	}
	return a, nil
}

// ConditionedTransitionBlock is a SwiGLU transition whose input is
// adaptively normalized and whose output is gated by the conditioning signal.
type ConditionedTransitionBlock struct {
	AdaLN      *AdaLN
	SwishGate  *nn.Sequential // Linear(dim, 2*inner) -> SwiGLU
	AToB       *Linear
	BToA       *Linear
	OutputProj *nn.Sequential // Linear(dimCond, dim) -> Sigmoid

	gateLinear *Linear
	outLinear  *Linear
}

// NewConditionedTransitionBlock builds a block with expansion factor 2. The
// output gate is initialized with zero weight and bias -2.
func NewConditionedTransitionBlock(dim, dimCond int) *ConditionedTransitionBlock {
	inner := 2 * dim
	gate := NewLinear(dim, 2*inner, false)
	out := NewLinear(dimCond, dim, true)
	for i := range out.B.Data {
		out.B.Data[i] = -2.0
	}
	return &ConditionedTransitionBlock{
		AdaLN:      NewAdaLN(dim, dimCond),
		SwishGate:  &nn.Sequential{Layers: []nn.Module{gate, SwiGLU{}}},
		AToB:       NewLinear(dim, inner, false),
		BToA:       NewLinear(inner, dim, false),
		OutputProj: &nn.Sequential{Layers: []nn.Module{out, Sigmoid{}}},
		gateLinear: gate,
		outLinear:  out,
	}
}

// Forward computes the block output for input a conditioned on s.
func (c *ConditionedTransitionBlock) Forward(a, s *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := c.AdaLN.Forward(a, s)
	if err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}
	gated, err := c.SwishGate.Forward(a)
	if err != nil {
		return nil, fmt.Errorf("transition gate: %w", err)
	}
	b, err := c.AToB.Forward(a)
	if err != nil {
		return nil, fmt.Errorf("transition a_to_b: %w", err)
	}
	if b, err = tensor.Mul(gated, b); err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}
	y, err := c.BToA.Forward(b)
	if err != nil {
		return nil, fmt.Errorf("transition b_to_a: %w", err)
	}
	g, err := c.OutputProj.Forward(s)
	if err != nil {
		return nil, fmt.Errorf("transition output projection: %w", err)
	}
	return tensor.Mul(g, y)
}

// Params returns every parameterized sub-layer keyed by name.
func (c *ConditionedTransitionBlock) Params() map[string]Param {
	return map[string]Param{
		"adaln.s_norm":      c.AdaLN.SNorm.Param(),
		"adaln.s_scale":     c.AdaLN.SScale.Param(),
		"adaln.s_bias":      c.AdaLN.SBias.Param(),
		"swish_gate":        c.gateLinear.Param(),
		"a_to_b":            c.AToB.Param(),
		"b_to_a":            c.BToA.Param(),
		"output_projection": c.outLinear.Param(),
	}
}
