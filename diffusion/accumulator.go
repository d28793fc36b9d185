package diffusion

import (
	"fmt"
	"sort"

	"github.com/LiorZ/BoltzDesign1/nn/layers"
	"github.com/LiorZ/BoltzDesign1/tensor"
	"github.com/LiorZ/BoltzDesign1/utils"
)

// Transition produces the accumulator increment from the normalized token
// output a and the conditioning signal s.
type Transition interface {
	Forward(a, s *tensor.Tensor) (*tensor.Tensor, error)
}

// TokenAccumulator folds the score model's per-token output of every
// sampling step into a running representation for the confidence model.
type TokenAccumulator struct {
	NormNext    *layers.LayerNorm
	Fourier     *layers.FourierEmbedding
	NormFourier *layers.LayerNorm
	Block       Transition
}

// NewTokenAccumulator builds an accumulator for token representations of
// width tokenDim with a noise embedding of width fourierDim. The Fourier
// projection starts at zero; call InitNormal or load weights before use.
func NewTokenAccumulator(tokenDim, fourierDim int) *TokenAccumulator {
	return &TokenAccumulator{
		NormNext:    layers.NewLayerNorm(tokenDim, true, true),
		Fourier:     layers.NewFourierEmbedding(fourierDim),
		NormFourier: layers.NewLayerNorm(fourierDim, true, true),
		Block:       layers.NewConditionedTransitionBlock(tokenDim, tokenDim+fourierDim),
	}
}

// InitNormal draws the Fourier projection from draw.
func (t *TokenAccumulator) InitNormal(draw func() float64) {
	t.Fourier.InitNormal(draw)
}

// Update returns acc + Block(LN(next), [acc, LN(Fourier(times))]). next is
// (samples, tokens, dim) and times holds one noise embedding per sample. A
// nil acc is treated as zeros shaped like next.
func (t *TokenAccumulator) Update(times []float64, acc, next *tensor.Tensor) (*tensor.Tensor, error) {
	if next == nil || len(next.Shape) != 3 {
		return nil, fmt.Errorf("token accumulator: step output must be (samples, tokens, dim)")
	}
	samples, tokens := next.Shape[0], next.Shape[1]
	if len(times) != samples {
		return nil, fmt.Errorf("token accumulator: %d times for %d samples", len(times), samples)
	}
	if acc == nil {
		acc = tensor.New(next.Shape...)
	}

	normed, err := t.NormNext.Forward(next)
	if err != nil {
		return nil, fmt.Errorf("token accumulator: %w", err)
	}
	f, err := t.Fourier.Embed(times)
	if err != nil {
		return nil, fmt.Errorf("token accumulator: %w", err)
	}
	if f, err = t.NormFourier.Forward(f); err != nil {
		return nil, fmt.Errorf("token accumulator: %w", err)
	}

	dim := f.Shape[1]
	expanded := tensor.New(samples, tokens, dim)
	for b := 0; b < samples; b++ {
		row := f.Data[b*dim : (b+1)*dim]
		for k := 0; k < tokens; k++ {
			copy(expanded.Data[(b*tokens+k)*dim:], row)
		}
	}
	cond, err := tensor.Concat(acc, expanded)
	if err != nil {
		return nil, fmt.Errorf("token accumulator: %w", err)
	}

	delta, err := t.Block.Forward(normed, cond)
	if err != nil {
		return nil, fmt.Errorf("token accumulator: %w", err)
	}
	return tensor.Add(acc, delta)
}

// Params returns every learned parameter keyed by its checkpoint name.
func (t *TokenAccumulator) Params() map[string]layers.Param {
	params := map[string]layers.Param{
		"norm_next":          t.NormNext.Param(),
		"fourier_embed.proj": t.Fourier.Proj.Param(),
		"norm_fourier":       t.NormFourier.Param(),
	}
	if block, ok := t.Block.(*layers.ConditionedTransitionBlock); ok {
		for name, p := range block.Params() {
			params["transition_block."+name] = p
		}
	}
	return params
}

// Weights exports the parameters in the JSON weights format.
func (t *TokenAccumulator) Weights() *utils.ModelWeights {
	w := utils.NewModelWeights()
	for name, p := range t.Params() {
		var lw utils.LayerWeight
		if p.Weight != nil {
			lw.Weight = utils.TensorToWeightData(name+".weight", p.Weight)
		}
		if p.Bias != nil {
			lw.Bias = utils.TensorToWeightData(name+".bias", p.Bias)
		}
		w.Layers[name] = lw
	}
	return w
}

// LoadWeights copies every parameter from w. Missing layers and shape
// mismatches are errors.
func (t *TokenAccumulator) LoadWeights(w *utils.ModelWeights) error {
	params := t.Params()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := params[name]
		lw, err := w.Layer(name)
		if err != nil {
			return err
		}
		if p.Weight != nil {
			if err := utils.AssignWeightData(p.Weight, lw.Weight); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		if p.Bias != nil {
			if err := utils.AssignWeightData(p.Bias, lw.Bias); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

// LoadAccumulatorWeights builds an accumulator of the given widths and
// fills it from the weights file at path.
func LoadAccumulatorWeights(path string, tokenDim, fourierDim int) (*TokenAccumulator, error) {
	w, err := utils.LoadWeights(path)
	if err != nil {
		return nil, err
	}
	acc := NewTokenAccumulator(tokenDim, fourierDim)
	if err := acc.LoadWeights(w); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return acc, nil
}
