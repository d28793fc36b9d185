package diffusion

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Noise is the single random stream of a sampling or training pass. Every
// draw goes through it in a fixed order, so a seed reproduces a run exactly.
type Noise struct {
	normal distuv.Normal
	coin   distuv.Bernoulli
}

// NewNoise returns a stream seeded with seed.
func NewNoise(seed uint64) *Noise {
	src := rand.NewSource(seed)
	return &Noise{
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		coin:   distuv.Bernoulli{P: 0.5, Src: src},
	}
}

// Normal draws one standard normal value.
func (n *Noise) Normal() float64 { return n.normal.Rand() }

// Flip draws a fair coin.
func (n *Noise) Flip() bool { return n.coin.Rand() == 1 }

// Gaussian returns a tensor of standard normal draws, filled in row-major
// order.
func (n *Noise) Gaussian(shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = n.normal.Rand()
	}
	return t
}
