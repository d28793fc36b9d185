package nn

import (
	"fmt"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// NullScoreModel predicts a zero coordinate update and a zero token
// representation. With a zero update the preconditioned denoiser reduces to
// c_skip(sigma) * noisy, which makes it useful for dry runs.
type NullScoreModel struct {
	// TokenDim is the width of the token representation (2 * token_s).
	TokenDim int
	// NumTokens is used when the context carries no trunk representation.
	NumTokens int

	// Calls counts evaluations.
	Calls int
}

// Evaluate implements ScoreModel.
func (m *NullScoreModel) Evaluate(in *ScoreInput) (*ScoreOutput, error) {
	if in == nil || in.Coords == nil || len(in.Coords.Shape) != 3 {
		return nil, fmt.Errorf("null score model: expected (samples, atoms, 3) coordinates")
	}
	samples := in.Coords.Shape[0]
	if len(in.Times) != samples {
		return nil, fmt.Errorf("null score model: %d times for %d samples", len(in.Times), samples)
	}
	m.Calls++

	tokens := m.NumTokens
	if in.Context != nil && in.Context.STrunk != nil && len(in.Context.STrunk.Shape) == 3 {
		tokens = in.Context.STrunk.Shape[1]
	}
	if in.Cache.Empty() {
		// first call of a cached run: store the step-invariant pair bias
		in.Cache.Set("pair_bias", tensor.New(tokens, tokens))
	}

	return &ScoreOutput{
		Update:    tensor.New(in.Coords.Shape...),
		TokenRepr: tensor.New(samples, tokens, m.TokenDim),
	}, nil
}
