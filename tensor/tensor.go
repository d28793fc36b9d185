package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when two operands do not have the same shape.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	// Compute total size
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData wraps a copy of data with the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	t := &Tensor{Shape: append([]int(nil), shape...)}
	if len(data) != t.Numel() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	t.Data = append([]float64(nil), data...)
	return t, nil
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Numel returns the number of elements implied by the shape.
func (t *Tensor) Numel() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

func checkShapes(a, b *Tensor) error {
	if !SameShape(a, b) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	return nil
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := checkShapes(a, b); err != nil {
		return nil, err
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Mul returns the element-wise product a*b.
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := checkShapes(a, b); err != nil {
		return nil, err
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	return out, nil
}

// Scale returns s*a.
func Scale(a *Tensor, s float64) *Tensor {
	out := New(a.Shape...)
	for i, v := range a.Data {
		out.Data[i] = v * s
	}
	return out
}

// AddScaled computes dst += s*src in place.
func AddScaled(dst *Tensor, s float64, src *Tensor) error {
	if err := checkShapes(dst, src); err != nil {
		return err
	}
	for i, v := range src.Data {
		dst.Data[i] += s * v
	}
	return nil
}

// ScaleRows multiplies every element of row b (the leading dimension) by
// scales[b]. It is the flat equivalent of broadcasting a (b, 1, 1) factor.
func ScaleRows(a *Tensor, scales []float64) (*Tensor, error) {
	if len(a.Shape) == 0 || a.Shape[0] != len(scales) {
		return nil, fmt.Errorf("%w: %d row scales for shape %v", ErrShapeMismatch, len(scales), a.Shape)
	}
	out := New(a.Shape...)
	if len(scales) == 0 {
		return out, nil
	}
	stride := len(a.Data) / len(scales)
	for b, s := range scales {
		for i := b * stride; i < (b+1)*stride; i++ {
			out.Data[i] = a.Data[i] * s
		}
	}
	return out, nil
}

// RepeatInterleave repeats every slice along the leading dimension n times,
// keeping the copies of one slice adjacent.
func RepeatInterleave(a *Tensor, n int) *Tensor {
	if n == 1 {
		return a.Clone()
	}
	shape := append([]int(nil), a.Shape...)
	shape[0] *= n
	out := New(shape...)
	stride := len(a.Data) / a.Shape[0]
	for b := 0; b < a.Shape[0]; b++ {
		src := a.Data[b*stride : (b+1)*stride]
		for r := 0; r < n; r++ {
			copy(out.Data[(b*n+r)*stride:], src)
		}
	}
	return out
}

// Concat joins a and b along their last dimension. All leading dimensions
// must agree.
func Concat(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) || len(a.Shape) == 0 {
		return nil, fmt.Errorf("%w: cannot concat %v and %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	last := len(a.Shape) - 1
	for i := 0; i < last; i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("%w: cannot concat %v and %v", ErrShapeMismatch, a.Shape, b.Shape)
		}
	}
	da, db := a.Shape[last], b.Shape[last]
	shape := append([]int(nil), a.Shape...)
	shape[last] = da + db
	out := New(shape...)
	rows := len(a.Data) / da
	for r := 0; r < rows; r++ {
		copy(out.Data[r*(da+db):], a.Data[r*da:(r+1)*da])
		copy(out.Data[r*(da+db)+da:], b.Data[r*db:(r+1)*db])
	}
	return out, nil
}

// RoundFloat32 rounds every element to the nearest float32 value in place.
func (t *Tensor) RoundFloat32() *Tensor {
	for i, v := range t.Data {
		t.Data[i] = float64(float32(v))
	}
	return t
}

// At returns the element at the given indices.
// For a 3D tensor [a, b, c], At(i, j, k) returns the element at position [i][j][k].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}

	// Compute linear index
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
