// Package objective provides benchmark objective functions with known
// optima, used by the CLI, the worker, the job server and tests.
package objective

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/bayesopt/internal/space"
)

// ErrUnknown is returned by Lookup for an unregistered name.
var ErrUnknown = errors.New("unknown objective")

// Func computes the objective at x.
type Func func(x []float64) float64

// Objective is a named benchmark with its natural domain.
type Objective struct {
	Name string
	// Dim is the fixed dimensionality, or 0 when any dimensionality works.
	Dim     int
	Bounds  func(dim int) space.Bounds
	Func    Func
	Minimum float64
	// Argmin is the known minimizer for a given dimensionality, if any.
	Argmin func(dim int) []float64
}

// Evaluate adapts the objective to the evaluator signature.
func (o Objective) Evaluate(x []float64) (float64, error) {
	if o.Dim > 0 && len(x) != o.Dim {
		return 0, fmt.Errorf("%s: want %d coordinates, got %d", o.Name, o.Dim, len(x))
	}
	return o.Func(x), nil
}

// ResolveDim returns the dimensionality to use given a requested one.
func (o Objective) ResolveDim(requested int) (int, error) {
	if o.Dim > 0 {
		if requested != 0 && requested != o.Dim {
			return 0, fmt.Errorf("%s is %d-dimensional, got dim=%d", o.Name, o.Dim, requested)
		}
		return o.Dim, nil
	}
	if requested < 1 {
		return 0, fmt.Errorf("%s needs dim >= 1, got %d", o.Name, requested)
	}
	return requested, nil
}

// OffsetSphere returns f(x) = floor + Σ (x_i - centre)² on [0,1]^d.
func OffsetSphere(centre, floor float64) Func {
	return func(x []float64) float64 {
		total := floor
		for _, v := range x {
			d := v - centre
			total += d * d
		}
		return total
	}
}

// Branin is the 2-D Branin-Hoo function on [-5,10]x[0,15].
func Branin(x []float64) float64 {
	const (
		a = 1.0
		b = 5.1 / (4 * math.Pi * math.Pi)
		c = 5 / math.Pi
		r = 6.0
		s = 10.0
		t = 1 / (8 * math.Pi)
	)
	x1, x2 := x[0], x[1]
	q := x2 - b*x1*x1 + c*x1 - r
	return a*q*q + s*(1-t)*math.Cos(x1) + s
}

var hartmannA = [4][6]float64{
	{10, 3, 17, 3.5, 1.7, 8},
	{0.05, 10, 17, 0.1, 8, 14},
	{3, 3.5, 1.7, 10, 17, 8},
	{17, 8, 0.05, 10, 0.1, 14},
}

var hartmannP = [4][6]float64{
	{0.1312, 0.1696, 0.5569, 0.0124, 0.8283, 0.5886},
	{0.2329, 0.4135, 0.8307, 0.3736, 0.1004, 0.9991},
	{0.2348, 0.1451, 0.3522, 0.2883, 0.3047, 0.6650},
	{0.4047, 0.8828, 0.8732, 0.5743, 0.1091, 0.0381},
}

var hartmannAlpha = [4]float64{1.0, 1.2, 3.0, 3.2}

// Hartmann6 is the 6-D Hartmann function on [0,1]^6.
func Hartmann6(x []float64) float64 {
	var total float64
	for i := 0; i < 4; i++ {
		var inner float64
		for j := 0; j < 6; j++ {
			d := x[j] - hartmannP[i][j]
			inner += hartmannA[i][j] * d * d
		}
		total -= hartmannAlpha[i] * math.Exp(-inner)
	}
	return total
}

// Rosenbrock is the d-dimensional Rosenbrock valley on [-2,2]^d.
func Rosenbrock(x []float64) float64 {
	var total float64
	for i := 0; i+1 < len(x); i++ {
		a := 1 - x[i]
		b := x[i+1] - x[i]*x[i]
		total += a*a + 100*b*b
	}
	return total
}

func fill(v float64) func(int) []float64 {
	return func(dim int) []float64 {
		out := make([]float64, dim)
		for i := range out {
			out[i] = v
		}
		return out
	}
}

func box(lo, hi float64) func(int) space.Bounds {
	return func(dim int) space.Bounds { return space.NewBounds(dim, lo, hi) }
}

var registry = map[string]Objective{
	"sphere": {
		Name: "sphere", Bounds: box(0, 1), Func: OffsetSphere(0.53, 10),
		Minimum: 10, Argmin: fill(0.53),
	},
	"shifted": {
		Name: "shifted", Bounds: box(0, 1), Func: OffsetSphere(0.33, 5),
		Minimum: 5, Argmin: fill(0.33),
	},
	"branin": {
		Name: "branin", Dim: 2,
		Bounds: func(int) space.Bounds {
			return space.Bounds{Lower: []float64{-5, 0}, Upper: []float64{10, 15}}
		},
		Func: Branin, Minimum: 0.397887,
		Argmin: func(int) []float64 { return []float64{math.Pi, 2.275} },
	},
	"hartmann6": {
		Name: "hartmann6", Dim: 6, Bounds: box(0, 1), Func: Hartmann6,
		Minimum: -3.32237,
		Argmin: func(int) []float64 {
			return []float64{0.20169, 0.150011, 0.476874, 0.275332, 0.311652, 0.6573}
		},
	},
	"rosenbrock": {
		Name: "rosenbrock", Bounds: box(-2, 2), Func: Rosenbrock,
		Minimum: 0, Argmin: fill(1),
	},
}

// Lookup returns a registered objective by name.
func Lookup(name string) (Objective, error) {
	o, ok := registry[name]
	if !ok {
		return Objective{}, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, Names())
	}
	return o, nil
}

// Names lists the registered objectives in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failing returns an evaluator-shaped function that always fails.
func Failing(reason string) func([]float64) (float64, error) {
	return func(x []float64) (float64, error) {
		return 0, fmt.Errorf("objective failed: %s", reason)
	}
}
