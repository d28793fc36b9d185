package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmasDefault(t *testing.T) {
	p := DefaultScheduleParams()
	sigmas, err := p.Sigmas(5)
	require.NoError(t, err)
	require.Len(t, sigmas, 6)

	assert.Equal(t, 160.0*16.0, sigmas[0])
	assert.Equal(t, 0.0004*16.0, sigmas[4])
	assert.Equal(t, 0.0, sigmas[5])
	for i := 1; i < 5; i++ {
		assert.Less(t, sigmas[i], sigmas[i-1], "sigma %d", i)
	}

	want := []float64{2560, 489.86067845557346, 55.97479298424289, 2.3750066281628186, 0.0064, 0}
	if diff := cmp.Diff(want, sigmas, cmpopts.EquateApprox(1e-12, 0)); diff != "" {
		t.Errorf("sigmas mismatch (-want +got):\n%s", diff)
	}
}

func TestSigmasTooFewSteps(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		_, err := DefaultScheduleParams().Sigmas(n)
		assert.True(t, errors.Is(err, ErrTooFewSteps), "n=%d", n)
	}
	sigmas, err := DefaultScheduleParams().Sigmas(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2560, 0.0064, 0}, sigmas)
}

func TestGammas(t *testing.T) {
	p := DefaultScheduleParams()
	got := p.Gammas([]float64{2560, 1.5, 1.0, 0.5, 0})
	assert.Equal(t, []float64{0.8, 0.8, 0, 0, 0}, got)
}

func TestSchedule(t *testing.T) {
	steps, err := DefaultScheduleParams().Schedule(5)
	require.NoError(t, err)
	require.Len(t, steps, 5)

	gammas := []float64{0.8, 0.8, 0.8, 0, 0}
	for i, st := range steps {
		assert.Equal(t, gammas[i], st.Gamma, "step %d", i)
		if i+1 < len(steps) {
			assert.Equal(t, steps[i+1].SigmaPrev, st.SigmaNext)
		}
	}
	assert.Equal(t, 0.0, steps[4].SigmaNext)

	_, err = DefaultScheduleParams().Schedule(1)
	assert.ErrorIs(t, err, ErrTooFewSteps)
}

func TestScheduleLongIsMonotone(t *testing.T) {
	sigmas, err := DefaultScheduleParams().Sigmas(200)
	require.NoError(t, err)
	for i := 1; i < 200; i++ {
		require.Less(t, sigmas[i], sigmas[i-1])
		require.False(t, math.IsNaN(sigmas[i]))
	}
}
