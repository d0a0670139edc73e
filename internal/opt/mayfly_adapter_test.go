package opt

import (
	"math"
	"testing"
)

// Shifted sphere: f(x) = sum((x_i-0.3)^2), minimum at 0.3
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		d := v - 0.3
		sum += d * d
	}
	return sum
}

func unitBounds(dim int) ([]float64, []float64) {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		upper[i] = 1
	}
	return lower, upper
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower, upper := unitBounds(dim)

	best, cost := optimizer.Run(sphere, lower, upper, dim)

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 5e-3 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if math.Abs(v-0.3) > 0.1 {
			t.Errorf("Parameter %d = %f, expected near 0.3", i, v)
		}
		if v < 0 || v > 1 {
			t.Errorf("Parameter %d = %f outside bounds", i, v)
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	dim := 2
	lower, upper := unitBounds(dim)

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	optimizer1 := NewMayfly(50, 20, 123)
	_, cost1 := optimizer1.Run(sphere, lower, upper, dim)

	optimizer2 := NewMayfly(50, 20, 123)
	_, cost2 := optimizer2.Run(sphere, lower, upper, dim)

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestMaximizeNegates(t *testing.T) {
	dim := 2
	lower, upper := unitBounds(dim)

	score := func(x []float64) float64 { return 1 - sphere(x) }
	best, value := Maximize(NewMayfly(60, 20, 7), score, lower, upper, dim)

	if value < 0.995 {
		t.Errorf("Expected maximum near 1, got %f", value)
	}
	for i, v := range best {
		if math.Abs(v-0.3) > 0.1 {
			t.Errorf("Parameter %d = %f, expected near 0.3", i, v)
		}
	}
}
