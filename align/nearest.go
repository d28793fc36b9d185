package align

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Matcher answers nearest-point queries against a fixed reference structure.
// A built Matcher is read-only and may be queried from several goroutines.
type Matcher struct {
	tree *kdtree.Tree
	size int
}

// NewMatcher indexes reference. The slice is copied.
func NewMatcher(reference []r3.Vec) *Matcher {
	if len(reference) == 0 {
		return &Matcher{}
	}
	pts := make(kdtree.Points, len(reference))
	for i, p := range reference {
		pts[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	return &Matcher{tree: kdtree.New(pts, false), size: len(reference)}
}

// Len returns the number of reference points.
func (m *Matcher) Len() int { return m.size }

// Nearest returns, for every query point, the closest reference point under
// Euclidean distance. Ties resolve to whichever candidate the tree visits
// first.
func (m *Matcher) Nearest(query []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(query))
	if m.size == 0 {
		return out
	}
	for i, q := range query {
		c, _ := m.tree.Nearest(kdtree.Point{q.X, q.Y, q.Z})
		p := c.(kdtree.Point)
		out[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

// NearestPoints is a one-shot Matcher query.
func NearestPoints(query, reference []r3.Vec) []r3.Vec {
	return NewMatcher(reference).Nearest(query)
}
