package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiorZ/BoltzDesign1/diffusion"
	"github.com/LiorZ/BoltzDesign1/utils"
)

const guidePDB = `ATOM      1  CA  GLY A   1       0.000   0.000   0.000  1.00  0.00           C
ATOM      2  CA  ALA A   2       3.800   0.000   0.000  1.00  0.00           C
ATOM      3  CA  SER A   3       7.600   1.000  -2.500  1.00  0.00           C
END
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunNullModel(t *testing.T) {
	cfg := utils.Default()
	cfg.Sampler.Multiplicity = 2
	cfg.Sampler.Seed = 3
	cfg.Model.TokenDim = 4
	cfg.Model.Tokens = 2

	var buf bytes.Buffer
	require.NoError(t, run(cfg, 5, quietLogger(), &buf))

	var out output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Coords, 2)
	assert.Len(t, out.Coords[0], 5)
	assert.Equal(t, 5, out.Steps)
	assert.Equal(t, uint64(3), out.Seed)
	assert.NotEmpty(t, out.RunID)
	assert.Nil(t, out.TokenRepr)
}

func TestRunGuidedWithAccumulator(t *testing.T) {
	dir := t.TempDir()
	guide := filepath.Join(dir, "guide.pdb")
	require.NoError(t, os.WriteFile(guide, []byte(guidePDB), 0644))
	weights := filepath.Join(dir, "acc.json")
	require.NoError(t, utils.SaveWeights(weights, diffusion.NewTokenAccumulator(4, 6).Weights()))

	cfg := utils.Default()
	cfg.Guide.Structure = guide
	cfg.Sampler.AccumulateTokenRepr = true
	cfg.Model.AccumulatorWeights = weights
	cfg.Model.TokenDim = 4
	cfg.Model.FourierDim = 6
	cfg.Model.Tokens = 3
	require.NoError(t, utils.ValidateConfig(cfg))

	var buf bytes.Buffer
	require.NoError(t, run(cfg, 0, quietLogger(), &buf))

	var out output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Coords, 1)
	assert.Len(t, out.Coords[0], 3)
	require.NotNil(t, out.TokenRepr)
	assert.Equal(t, []int{1, 3, 4}, out.TokenRepr.Shape)
}

func TestRunErrors(t *testing.T) {
	cfg := utils.Default()
	require.Error(t, run(cfg, 0, quietLogger(), io.Discard))

	cfg.Guide.Structure = filepath.Join(t.TempDir(), "missing.pdb")
	require.Error(t, run(cfg, 4, quietLogger(), io.Discard))

	cfg = utils.Default()
	cfg.Model.Backend = "onnx"
	cfg.Model.Path = "score.onnx"
	if openONNX == nil {
		assert.ErrorContains(t, run(cfg, 4, quietLogger(), io.Discard), "-tags ort")
	}
}
