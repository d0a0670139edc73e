package space

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBounds is returned for empty, mismatched or inverted bounds.
var ErrInvalidBounds = errors.New("invalid bounds")

// Bounds defines a box [Lower, Upper] in the user's coordinates.
type Bounds struct {
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

// NewBounds creates dim-dimensional bounds with the same range on every axis.
func NewBounds(dim int, lo, hi float64) Bounds {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = lo
		upper[i] = hi
	}
	return Bounds{Lower: lower, Upper: upper}
}

// UnitCube returns [0,1]^dim.
func UnitCube(dim int) Bounds {
	return NewBounds(dim, 0, 1)
}

// Dim returns the dimensionality.
func (b Bounds) Dim() int { return len(b.Lower) }

// Validate checks that the box is non-empty and every axis has lower < upper.
func (b Bounds) Validate() error {
	if len(b.Lower) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidBounds)
	}
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("%w: %d lower vs %d upper", ErrInvalidBounds, len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		lo, hi := b.Lower[i], b.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return fmt.Errorf("%w: axis %d is not finite", ErrInvalidBounds, i)
		}
		if !(lo < hi) {
			return fmt.Errorf("%w: axis %d has lower %g >= upper %g", ErrInvalidBounds, i, lo, hi)
		}
	}
	return nil
}

// ToUnit maps x from the box into [0,1]^d.
func (b Bounds) ToUnit(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - b.Lower[i]) / (b.Upper[i] - b.Lower[i])
	}
	return out
}

// FromUnit maps u from [0,1]^d into the box.
func (b Bounds) FromUnit(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = b.Lower[i] + clamp(v, 0, 1)*(b.Upper[i]-b.Lower[i])
	}
	return out
}

// Contains reports whether x lies inside the box.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b.Lower) {
		return false
	}
	for i, v := range x {
		if v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}

// ClampVector clamps every coordinate of data into the box in place.
func (b Bounds) ClampVector(data []float64) {
	for i := range data {
		data[i] = clamp(data[i], b.Lower[i], b.Upper[i])
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}
