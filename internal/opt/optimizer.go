package opt

import "math"

// Optimizer defines a bounded global minimizer.
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Maximize runs o on the negated score and returns the argmax and its score.
func Maximize(o Optimizer, score func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	best, cost := o.Run(func(x []float64) float64 {
		v := score(x)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return -v
	}, lower, upper, dim)
	return best, -cost
}

func clampInto(x, lower, upper []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(lower[i], math.Min(upper[i], v))
	}
	return out
}
