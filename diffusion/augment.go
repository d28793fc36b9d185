package diffusion

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/align"
	"github.com/LiorZ/BoltzDesign1/tensor"
)

// translationScale is the standard deviation of the random translation.
const translationScale = 1.0

// Augmentation is a per-sample rigid motion drawn for one step.
type Augmentation struct {
	Rotations    []*mat.Dense
	Reflect      []bool
	Translations []r3.Vec
}

// quaternionToMatrix converts a (real-first) quaternion to a rotation
// matrix. The quaternion need not be normalized.
func quaternionToMatrix(q [4]float64) *mat.Dense {
	norm2 := floats.Dot(q[:], q[:])
	if norm2 == 0 {
		return align.Identity().R
	}
	r, i, j, k := q[0], q[1], q[2], q[3]
	s := 2 / norm2
	return mat.NewDense(3, 3, []float64{
		1 - s*(j*j+k*k), s * (i*j - k*r), s * (i*k + j*r),
		s * (i*j + k*r), 1 - s*(i*i+k*k), s * (j*k - i*r),
		s * (i*k - j*r), s * (j*k + i*r), 1 - s*(i*i+j*j),
	})
}

// DrawAugmentation draws uniformly random rotations (normalized Gaussian
// quaternions), optional x-axis reflections and Gaussian translations for
// samples structures. Draw order: all quaternions, then the reflection coins
// when reflect is set, then all translations.
func DrawAugmentation(noise *Noise, samples int, reflect bool) *Augmentation {
	aug := &Augmentation{
		Rotations:    make([]*mat.Dense, samples),
		Reflect:      make([]bool, samples),
		Translations: make([]r3.Vec, samples),
	}
	for b := range aug.Rotations {
		var q [4]float64
		for i := range q {
			q[i] = noise.Normal()
		}
		// q and -q are the same rotation; keep the real part non-negative
		if q[0] < 0 {
			floats.Scale(-1, q[:])
		}
		aug.Rotations[b] = quaternionToMatrix(q)
	}
	if reflect {
		for b := range aug.Reflect {
			aug.Reflect[b] = noise.Flip()
		}
	}
	for b := range aug.Translations {
		aug.Translations[b] = r3.Vec{
			X: noise.Normal() * translationScale,
			Y: noise.Normal() * translationScale,
			Z: noise.Normal() * translationScale,
		}
	}
	return aug
}

// maskedCentroids returns the per-sample centroid of the atoms selected by
// mask. A sample without any selected atom has a zero centroid.
func maskedCentroids(coords, mask *tensor.Tensor) []r3.Vec {
	samples, atoms := coords.Shape[0], coords.Shape[1]
	out := make([]r3.Vec, samples)
	for b := range out {
		var sum r3.Vec
		total := 0.0
		for a := 0; a < atoms; a++ {
			m := mask.Data[b*atoms+a]
			if m == 0 {
				continue
			}
			o := (b*atoms + a) * 3
			sum = r3.Add(sum, r3.Scale(m, r3.Vec{X: coords.Data[o], Y: coords.Data[o+1], Z: coords.Data[o+2]}))
			total += m
		}
		if total > 0 {
			out[b] = r3.Scale(1/total, sum)
		}
	}
	return out
}

// CenterAugment recenters coords on their masked centroid and, when aug is
// non-nil, applies its rigid motion. second, if non-nil, receives exactly
// the same transform. Both tensors are modified in place.
func CenterAugment(coords, mask *tensor.Tensor, aug *Augmentation, second *tensor.Tensor) error {
	if len(coords.Shape) != 3 || coords.Shape[2] != 3 {
		return fmt.Errorf("augment: coordinates %v must be (samples, atoms, 3)", coords.Shape)
	}
	samples, atoms := coords.Shape[0], coords.Shape[1]
	if len(mask.Shape) != 2 || mask.Shape[0] != samples || mask.Shape[1] != atoms {
		return fmt.Errorf("augment: mask %v does not match coordinates %v", mask.Shape, coords.Shape)
	}
	if second != nil && !tensor.SameShape(coords, second) {
		return fmt.Errorf("augment: %w: %v vs %v", tensor.ErrShapeMismatch, coords.Shape, second.Shape)
	}
	if aug != nil && len(aug.Rotations) != samples {
		return fmt.Errorf("augment: %d rotations for %d samples", len(aug.Rotations), samples)
	}

	centers := maskedCentroids(coords, mask)
	for _, t := range []*tensor.Tensor{coords, second} {
		if t == nil {
			continue
		}
		for b := 0; b < samples; b++ {
			pts := align.Points(t, b)
			for i, p := range pts {
				p = r3.Sub(p, centers[b])
				if aug != nil {
					p = align.Transform{R: aug.Rotations[b]}.Apply(p)
					if aug.Reflect[b] {
						p.X = -p.X
					}
					p = r3.Add(p, aug.Translations[b])
				}
				pts[i] = p
			}
			align.SetPoints(t, b, pts)
		}
	}
	return nil
}
