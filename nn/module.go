package nn

import (
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Conditioning bundles the fixed per-structure representations shared by
// every diffusion step of one pass. It is read-only for the duration of the
// pass and owned by the caller.
type Conditioning struct {
	SInputs        *tensor.Tensor // (batch, tokens, s_inputs)
	STrunk         *tensor.Tensor // (batch, tokens, token_s)
	ZTrunk         *tensor.Tensor // (batch, tokens, tokens, token_z)
	RelPosEncoding *tensor.Tensor // (batch, tokens, tokens, token_z)

	// Feats holds any further named featurizer outputs the score model reads.
	Feats map[string]*tensor.Tensor
}

// ScoreInput is one score model evaluation request.
type ScoreInput struct {
	// Coords are the c_in scaled noisy coordinates, (samples, atoms, 3).
	Coords *tensor.Tensor
	// Times holds the noise embedding c_noise(sigma), one per sample.
	Times []float64
	// Context is shared by all steps of a run.
	Context *Conditioning
	// Cache is nil when inference caching is disabled.
	Cache *Cache
	// Multiplicity is the number of samples drawn per batch entry.
	Multiplicity int
}

// ScoreOutput is the result of one score model evaluation.
type ScoreOutput struct {
	Update    *tensor.Tensor // (samples, atoms, 3)
	TokenRepr *tensor.Tensor // (samples, tokens, dim)
}

// ScoreModel predicts a coordinate update from noisy coordinates and a noise
// level. Implementations may read and populate in.Cache.
type ScoreModel interface {
	Evaluate(in *ScoreInput) (*ScoreOutput, error)
}
