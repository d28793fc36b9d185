// Package align implements weighted rigid (Kabsch) superposition of point
// sets and nearest-point correspondence between structures.
//
// All arithmetic runs in float64 regardless of the precision the caller keeps
// its coordinates in. A set whose total weight is zero is returned unchanged,
// i.e. it resolves to the identity transform.
package align

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Logger receives alignment warnings. It discards by default.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ErrSVD is returned when the covariance matrix cannot be factorized.
var ErrSVD = errors.New("align: svd factorization failed")

const lowRankTol = 1e-15

// Transform is a proper rigid motion x -> R·(x - From) + To.
type Transform struct {
	R    *mat.Dense
	From r3.Vec
	To   r3.Vec
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{R: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

// Apply transforms p.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	d := r3.Sub(p, t.From)
	return r3.Add(r3.Vec{
		X: t.R.At(0, 0)*d.X + t.R.At(0, 1)*d.Y + t.R.At(0, 2)*d.Z,
		Y: t.R.At(1, 0)*d.X + t.R.At(1, 1)*d.Y + t.R.At(1, 2)*d.Z,
		Z: t.R.At(2, 0)*d.X + t.R.At(2, 1)*d.Y + t.R.At(2, 2)*d.Z,
	}, t.To)
}

func centroid(pts []r3.Vec, w []float64) r3.Vec {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	zs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return r3.Vec{X: stat.Mean(xs, w), Y: stat.Mean(ys, w), Z: stat.Mean(zs, w)}
}

// Fit returns the rigid transform minimizing Σ w·|T(mobile) - target|².
// The rotation is corrected to a proper rotation when the optimal orthogonal
// map is a reflection.
func Fit(mobile, target []r3.Vec, weights []float64) (Transform, error) {
	if len(mobile) != len(target) || len(mobile) != len(weights) {
		return Transform{}, fmt.Errorf("align: %d mobile, %d target points and %d weights", len(mobile), len(target), len(weights))
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 || math.IsNaN(total) {
		return Identity(), nil
	}
	if len(mobile) < 4 {
		Logger.Warn("point cloud has at most dim+1 points, the alignment may be ill-posed", "points", len(mobile))
	}

	mc := centroid(mobile, weights)
	tc := centroid(target, weights)

	// covariance Σ w·(target - tc)(mobile - mc)ᵀ
	cov := mat.NewDense(3, 3, nil)
	for i := range mobile {
		w := weights[i]
		if w == 0 {
			continue
		}
		a := r3.Sub(target[i], tc)
		b := r3.Sub(mobile[i], mc)
		av := [3]float64{a.X, a.Y, a.Z}
		bv := [3]float64{b.X, b.Y, b.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov.Set(r, c, cov.At(r, c)+w*av[r]*bv[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return Transform{}, ErrSVD
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	if len(mobile) >= 4 {
		for _, s := range svd.Values(nil) {
			if math.Abs(s) <= lowRankTol {
				Logger.Warn("excessively low rank of cross-correlation between aligned point clouds")
				break
			}
		}
	}

	var rot mat.Dense
	rot.Mul(&u, v.T())
	f := mat.NewDiagDense(3, []float64{1, 1, mat.Det(&rot)})
	var uf mat.Dense
	uf.Mul(&u, f)
	rot.Mul(&uf, v.T())

	return Transform{R: &rot, From: mc, To: tc}, nil
}

// AlignPoints superposes mobile onto target and returns the moved copy.
func AlignPoints(mobile, target []r3.Vec, weights []float64) ([]r3.Vec, error) {
	tr, err := Fit(mobile, target, weights)
	if err != nil {
		return nil, err
	}
	out := make([]r3.Vec, len(mobile))
	for i, p := range mobile {
		out[i] = tr.Apply(p)
	}
	return out, nil
}

// WeightedRigidAlign aligns every sample of mobile onto the same sample of
// target. mobile and target are (batch, points, 3); weights and mask are
// (batch, points) and are multiplied together.
func WeightedRigidAlign(mobile, target, weights, mask *tensor.Tensor) (*tensor.Tensor, error) {
	if !tensor.SameShape(mobile, target) || len(mobile.Shape) != 3 || mobile.Shape[2] != 3 {
		return nil, fmt.Errorf("align: mobile %v and target %v must be (batch, points, 3)", mobile.Shape, target.Shape)
	}
	batch, n := mobile.Shape[0], mobile.Shape[1]
	for _, m := range []*tensor.Tensor{weights, mask} {
		if len(m.Shape) != 2 || m.Shape[0] != batch || m.Shape[1] != n {
			return nil, fmt.Errorf("align: weight shape %v, want [%d %d]", m.Shape, batch, n)
		}
	}

	out := tensor.New(mobile.Shape...)
	w := make([]float64, n)
	for b := 0; b < batch; b++ {
		for i := range w {
			w[i] = weights.Data[b*n+i] * mask.Data[b*n+i]
		}
		aligned, err := AlignPoints(Points(mobile, b), Points(target, b), w)
		if err != nil {
			return nil, fmt.Errorf("align sample %d: %w", b, err)
		}
		SetPoints(out, b, aligned)
	}
	return out, nil
}

// Points returns sample b of a (batch, points, 3) tensor as vectors.
func Points(t *tensor.Tensor, b int) []r3.Vec {
	n := t.Shape[1]
	pts := make([]r3.Vec, n)
	base := b * n * 3
	for i := range pts {
		pts[i] = r3.Vec{X: t.Data[base+i*3], Y: t.Data[base+i*3+1], Z: t.Data[base+i*3+2]}
	}
	return pts
}

// SetPoints writes pts into sample b of a (batch, points, 3) tensor.
func SetPoints(t *tensor.Tensor, b int, pts []r3.Vec) {
	base := b * t.Shape[1] * 3
	for i, p := range pts {
		t.Data[base+i*3] = p.X
		t.Data[base+i*3+1] = p.Y
		t.Data[base+i*3+2] = p.Z
	}
}
