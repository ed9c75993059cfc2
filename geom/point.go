/*Package geom contains the coordinate types shared by particles and the code
that moves them around.

A Point is a plain slice of components. Its length is the dimension of the
space it lives in: a particle's location has spacedim components and its
reference location has dim components.
*/
package geom

import (
	"math"
)

const (
	// uninitializedBits is a quiet NaN with a recognizable payload. It is
	// written into every component of a point which has not been set yet.
	uninitializedBits uint64 = 0x7ff800000badf00d
)

// Point is a coordinate tuple of arbitrary dimension.
type Point []float64

// UninitializedValue returns the reserved component value used to mark
// coordinates which have never been assigned. It is a NaN, so it fails every
// comparison, but it is also a specific bit pattern which can be recognized
// by IsUninitialized.
func UninitializedValue() float64 {
	return math.Float64frombits(uninitializedBits)
}

// Uninitialized returns a point of the given dimension with every component
// set to UninitializedValue.
func Uninitialized(dim int) Point {
	if dim < 0 {
		panic("geom: negative dimension")
	}
	p := make(Point, dim)
	nan := UninitializedValue()
	for i := range p { p[i] = nan }
	return p
}

// Dim returns the number of components in p.
func (p Point) Dim() int { return len(p) }

// Copy returns a point with the same components as p which does not share
// memory with it.
func (p Point) Copy() Point {
	if p == nil { return nil }
	q := make(Point, len(p))
	copy(q, p)
	return q
}

// IsUninitialized returns true if any component of p carries the reserved
// uninitialized bit pattern.
func (p Point) IsUninitialized() bool {
	for _, x := range p {
		if math.Float64bits(x) == uninitializedBits { return true }
	}
	return false
}

// Identical returns true if p and q have the same dimension and are equal
// bit-for-bit. Unlike ==, two NaN components with the same payload compare
// as identical.
func (p Point) Identical(q Point) bool {
	if len(p) != len(q) { return false }
	for i := range p {
		if math.Float64bits(p[i]) != math.Float64bits(q[i]) { return false }
	}
	return true
}
