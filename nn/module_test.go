package nn

import (
	"errors"
	"testing"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// dummy layer: adds a constant
type addLayer struct{ c float64 }

func (l *addLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Add(x, &tensor.Tensor{Data: []float64{l.c}, Shape: []int{1}})
}

// dummy layer: error on forward
type errLayer struct{}

func (l *errLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, errors.New("fail")
}

func TestSequentialPlain(t *testing.T) {
	a := tensor.New(1)
	a.Data[0] = 1
	seq := &Sequential{Layers: []Module{&addLayer{c: 2}, &addLayer{c: 3}}}
	out, err := seq.Forward(a)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 6 {
		t.Fatalf("expected 6, got %f", out.Data[0])
	}
}

func TestSequentialStopsOnError(t *testing.T) {
	seq := &Sequential{Layers: []Module{&addLayer{c: 0}, &errLayer{}, &addLayer{c: 1}}}
	if _, err := seq.Forward(tensor.New(1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestNullScoreModel(t *testing.T) {
	m := &NullScoreModel{TokenDim: 4, NumTokens: 3}
	cache := NewCache()
	in := &ScoreInput{
		Coords: tensor.New(2, 5, 3),
		Times:  []float64{0.1, 0.1},
		Cache:  cache,
	}
	out, err := m.Evaluate(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.TokenRepr.Shape; got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Errorf("token repr shape %v", got)
	}
	if cache.Empty() {
		t.Errorf("first evaluation should populate the cache")
	}
	if _, err := m.Evaluate(&ScoreInput{Coords: tensor.New(2, 5, 3), Times: []float64{1}}); err == nil {
		t.Errorf("expected error for mismatched times")
	}
	if m.Calls != 1 {
		t.Errorf("calls = %d, want 1", m.Calls)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if !c.Empty() || c.Len() != 0 {
		t.Fatal("nil cache must be empty")
	}
	c.Set("k", tensor.New(1))
	if _, ok := c.Get("k"); ok {
		t.Fatal("nil cache must not store entries")
	}
}

func TestCacheRunIDsDiffer(t *testing.T) {
	if NewCache().RunID == NewCache().RunID {
		t.Fatal("caches of different runs share an id")
	}
}
