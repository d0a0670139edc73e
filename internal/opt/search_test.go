package opt

import (
	"math"
	"testing"
)

func TestRandomSearch(t *testing.T) {
	dim := 2
	lower, upper := unitBounds(dim)
	rs := NewRandomSearch(2000, 1)

	best, cost := rs.Run(sphere, lower, upper, dim)
	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 5e-3 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	if math.Abs(sphere(best)-cost) > 1e-15 {
		t.Errorf("Returned cost %f does not match point cost %f", cost, sphere(best))
	}
}

func TestPolishImprovesGlobalResult(t *testing.T) {
	dim := 3
	lower, upper := unitBounds(dim)

	_, coarse := NewRandomSearch(50, 3).Run(sphere, lower, upper, dim)
	polished := &Polish{Global: NewRandomSearch(50, 3), MaxEvals: 300}
	best, cost := polished.Run(sphere, lower, upper, dim)

	if cost > coarse {
		t.Errorf("Polish made things worse: %f > %f", cost, coarse)
	}
	if cost > 1e-4 {
		t.Errorf("Expected polished cost near 0, got %f", cost)
	}
	for i, v := range best {
		if v < 0 || v > 1 {
			t.Errorf("Parameter %d = %f outside bounds", i, v)
		}
	}
}

func TestPolishRespectsBounds(t *testing.T) {
	// Unconstrained minimum at -1, so the bounded optimum is the lower face.
	f := func(x []float64) float64 { return (x[0] + 1) * (x[0] + 1) }
	p := &Polish{Global: NewRandomSearch(20, 5), MaxEvals: 100}
	best, _ := p.Run(f, []float64{0}, []float64{1}, 1)
	if best[0] < 0 || best[0] > 1e-3 {
		t.Errorf("Expected point at lower face, got %f", best[0])
	}
}

func TestDiscrete(t *testing.T) {
	d := &Discrete{Points: [][]float64{{0, 0}, {0.3, 0.3}, {1, 1}, {0.5}}}
	best, cost := d.Run(sphere, nil, nil, 2)
	if best[0] != 0.3 || best[1] != 0.3 {
		t.Errorf("Expected (0.3, 0.3), got %v", best)
	}
	if cost != 0 {
		t.Errorf("Expected cost 0, got %f", cost)
	}

	// The returned point is a copy.
	best[0] = 9
	if d.Points[1][0] != 0.3 {
		t.Errorf("Discrete returned an alias of its candidate")
	}
}
