package align

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

var cloud = []r3.Vec{
	{X: 0, Y: 0, Z: 0},
	{X: 1.5, Y: 0.2, Z: -0.3},
	{X: 0.1, Y: 2.0, Z: 0.4},
	{X: -0.7, Y: 0.3, Z: 1.8},
	{X: 2.2, Y: -1.1, Z: 0.9},
	{X: -1.3, Y: -0.8, Z: -1.6},
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func rotateZ(pts []r3.Vec, theta float64, shift r3.Vec) []r3.Vec {
	c, s := math.Cos(theta), math.Sin(theta)
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = r3.Add(r3.Vec{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y, Z: p.Z}, shift)
	}
	return out
}

func assertClose(t *testing.T, want, got []r3.Vec, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(want[i], got[i])), tol, "point %d", i)
	}
}

func TestAlignRecoversRigidMotion(t *testing.T) {
	moved := rotateZ(cloud, 0.7, r3.Vec{X: 3, Y: -2, Z: 5})
	aligned, err := AlignPoints(moved, cloud, ones(len(cloud)))
	require.NoError(t, err)
	assertClose(t, cloud, aligned, 1e-9)
}

func TestAlignIsIdempotent(t *testing.T) {
	w := []float64{1, 2, 0.5, 1, 3, 1}
	once, err := AlignPoints(rotateZ(cloud, -1.2, r3.Vec{X: 1}), cloud, w)
	require.NoError(t, err)
	twice, err := AlignPoints(once, cloud, w)
	require.NoError(t, err)
	assertClose(t, once, twice, 1e-9)
}

func TestAlignNeverReflects(t *testing.T) {
	mirrored := make([]r3.Vec, len(cloud))
	for i, p := range cloud {
		mirrored[i] = r3.Vec{X: -p.X, Y: p.Y, Z: p.Z}
	}
	tr, err := Fit(mirrored, cloud, ones(len(cloud)))
	require.NoError(t, err)
	assert.InDelta(t, 1, mat.Det(tr.R), 1e-9)
}

func TestAlignZeroWeightIsIdentity(t *testing.T) {
	moved := rotateZ(cloud, 0.4, r3.Vec{Y: 7})
	aligned, err := AlignPoints(moved, cloud, make([]float64, len(cloud)))
	require.NoError(t, err)
	assert.Equal(t, moved, aligned)
}

func TestAlignLengthMismatch(t *testing.T) {
	_, err := AlignPoints(cloud[:3], cloud, ones(3))
	require.Error(t, err)
}

func TestAlignWarnsOnFewPoints(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = slog.New(slog.NewTextHandler(&buf, nil))
	defer func() { Logger = prev }()

	_, err := AlignPoints(cloud[:3], cloud[:3], ones(3))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ill-posed")
}

func TestWeightedRigidAlignBatched(t *testing.T) {
	n := len(cloud)
	target := tensor.New(2, n, 3)
	mobile := tensor.New(2, n, 3)
	SetPoints(target, 0, cloud)
	SetPoints(target, 1, cloud)
	SetPoints(mobile, 0, rotateZ(cloud, 0.3, r3.Vec{X: 1}))
	SetPoints(mobile, 1, rotateZ(cloud, 2.1, r3.Vec{Z: -4}))

	weights := tensor.New(2, n)
	mask := tensor.New(2, n)
	for i := range weights.Data {
		weights.Data[i] = 1
		mask.Data[i] = 1
	}
	// fully masked second sample stays put
	for i := n; i < 2*n; i++ {
		mask.Data[i] = 0
	}

	out, err := WeightedRigidAlign(mobile, target, weights, mask)
	require.NoError(t, err)
	assertClose(t, cloud, Points(out, 0), 1e-9)
	assertClose(t, Points(mobile, 1), Points(out, 1), 0)

	_, err = WeightedRigidAlign(mobile, target, tensor.New(2, n-1), mask)
	require.Error(t, err)
}

func TestNearestPoints(t *testing.T) {
	ref := []r3.Vec{{X: 0}, {X: 10}, {Y: 10}, {Z: -10}}
	query := []r3.Vec{{X: 9}, {X: 0.5, Y: 0.1}, {Z: -7}, {Y: 6}}
	got := NearestPoints(query, ref)
	assert.Equal(t, []r3.Vec{{X: 10}, {X: 0}, {Z: -10}, {Y: 10}}, got)

	assert.Equal(t, 4, NewMatcher(ref).Len())
	assert.Equal(t, []r3.Vec{{}}, NewMatcher(nil).Nearest([]r3.Vec{{X: 1}}))
}
