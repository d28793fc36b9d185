package diffusion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/LiorZ/BoltzDesign1/utils"
)

func TestConfigFromDefaults(t *testing.T) {
	cfg, loss := ConfigFrom(utils.Default())
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("sampler config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultLossConfig(), loss); diff != "" {
		t.Errorf("loss config mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestConfigFromOverrides(t *testing.T) {
	file := utils.Default()
	file.Sampler.Steps = 200
	file.Sampler.Multiplicity = 4
	file.Sampler.ReducedPrecision = true
	file.Guide.Strength = 0.7
	file.Schedule.SigmaData = 8

	cfg, loss := ConfigFrom(file)
	require.Equal(t, 200, cfg.Steps)
	require.True(t, cfg.ReducedPrecision)
	require.Equal(t, 0.7, cfg.GuideStrength)
	require.Equal(t, 8.0, cfg.Schedule.SigmaData)
	require.Equal(t, 8.0, loss.SigmaData)
	require.Equal(t, 4, loss.Multiplicity)
}
