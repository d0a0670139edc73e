package space

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Param is one axis of a mixed search space. Each axis occupies one unit
// interval coordinate.
type Param interface {
	ParamName() string
	// Decode maps u in [0,1] to the axis value.
	Decode(u float64) any
}

// Range is a numeric axis. Integer ranges split the unit interval into
// equal buckets, one per value, both ends included.
type Range[T constraints.Integer | constraints.Float] struct {
	Name string
	Min  T
	Max  T
}

// NewRange creates a named numeric axis.
func NewRange[T constraints.Integer | constraints.Float](name string, lo, hi T) Range[T] {
	return Range[T]{Name: name, Min: lo, Max: hi}
}

func (r Range[T]) ParamName() string { return r.Name }

func (r Range[T]) Decode(u float64) any { return r.Value(u) }

// Value maps u in [0,1] to the typed value.
func (r Range[T]) Value(u float64) T {
	u = clamp(u, 0, 1)
	lo, hi := float64(r.Min), float64(r.Max)
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(lo + u*(hi-lo))
	}
	v := lo + math.Floor(u*(hi-lo+1))
	if v > hi {
		v = hi
	}
	return T(v)
}

func (r Range[T]) validate() error {
	if !(r.Min < r.Max) {
		return fmt.Errorf("%w: range %q has min %v >= max %v", ErrInvalidBounds, r.Name, r.Min, r.Max)
	}
	return nil
}

// Categorical is an unordered axis; the unit interval is split into equal
// buckets, one per value.
type Categorical struct {
	Name   string
	Values []string
}

func (c Categorical) ParamName() string { return c.Name }

func (c Categorical) Decode(u float64) any { return c.Value(u) }

// Value returns the bucket u falls into.
func (c Categorical) Value(u float64) string {
	n := len(c.Values)
	i := int(clamp(u, 0, 1) * float64(n))
	if i >= n {
		i = n - 1
	}
	return c.Values[i]
}

// Space is an ordered set of axes optimized over the unit cube.
type Space struct {
	Params []Param
}

// Dim returns the number of axes.
func (s Space) Dim() int { return len(s.Params) }

// Bounds returns the unit cube the loop searches.
func (s Space) Bounds() Bounds { return UnitCube(len(s.Params)) }

// Decode maps a unit cube point to named, typed values.
func (s Space) Decode(u []float64) (map[string]any, error) {
	if len(u) != len(s.Params) {
		return nil, fmt.Errorf("space: point has %d coordinates, want %d", len(u), len(s.Params))
	}
	out := make(map[string]any, len(u))
	for i, p := range s.Params {
		out[p.ParamName()] = p.Decode(u[i])
	}
	return out, nil
}

// Validate checks axis names and ranges.
func (s Space) Validate() error {
	if len(s.Params) == 0 {
		return fmt.Errorf("%w: no parameters", ErrInvalidBounds)
	}
	seen := map[string]bool{}
	for i, p := range s.Params {
		name := p.ParamName()
		if name == "" {
			return fmt.Errorf("%w: parameter %d has no name", ErrInvalidBounds, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalidBounds, name)
		}
		seen[name] = true
		if c, ok := p.(Categorical); ok && len(c.Values) == 0 {
			return fmt.Errorf("%w: categorical %q has no values", ErrInvalidBounds, name)
		}
		if r, ok := p.(interface{ validate() error }); ok {
			if err := r.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}
