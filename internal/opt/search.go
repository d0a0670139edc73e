package opt

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/optimize"
)

var (
	_ Optimizer = (*Polish)(nil)
	_ Optimizer = (*RandomSearch)(nil)
	_ Optimizer = (*Discrete)(nil)
)

// Polish refines the result of a global optimizer with a bounded Nelder-Mead
// local search started from the global best.
type Polish struct {
	Global   Optimizer
	MaxEvals int
}

func (p *Polish) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	best, cost := p.Global.Run(eval, lower, upper, dim)

	maxEvals := p.MaxEvals
	if maxEvals <= 0 {
		maxEvals = 50 * dim
	}

	// Search in the clamped box; points outside map to the nearest face.
	bounded := func(x []float64) float64 {
		return eval(clampInto(x, lower, upper))
	}
	simplex := 0.05 * (upper[0] - lower[0])
	result, err := optimize.Minimize(
		optimize.Problem{Func: bounded},
		append([]float64(nil), best...),
		&optimize.Settings{FuncEvaluations: maxEvals},
		&optimize.NelderMead{SimplexSize: simplex},
	)
	if err != nil {
		slog.Debug("Local polish stopped", "error", err)
	}
	if result != nil && result.F < cost {
		return clampInto(result.X, lower, upper), result.F
	}
	return best, cost
}

// RandomSearch evaluates uniformly drawn candidates and keeps the best.
type RandomSearch struct {
	Candidates int
	rng        *rand.Rand
}

// NewRandomSearch returns a seeded random candidate search.
func NewRandomSearch(candidates int, seed uint64) *RandomSearch {
	return &RandomSearch{Candidates: max(candidates, 1), rng: rand.New(rand.NewPCG(seed, 0x7273))}
}

func (r *RandomSearch) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	var best []float64
	bestCost := math.Inf(1)
	x := make([]float64, dim)
	for i := 0; i < r.Candidates; i++ {
		for j := range x {
			x[j] = lower[j] + r.rng.Float64()*(upper[j]-lower[j])
		}
		if c := eval(x); c < bestCost || best == nil {
			bestCost = c
			best = append(best[:0], x...)
		}
	}
	return best, bestCost
}

// Discrete searches a fixed candidate set exhaustively. Bounds are ignored;
// the candidates define the domain.
type Discrete struct {
	Points [][]float64
}

func (d *Discrete) Run(eval func([]float64) float64, _, _ []float64, dim int) ([]float64, float64) {
	var best []float64
	bestCost := math.Inf(1)
	for _, p := range d.Points {
		if len(p) != dim {
			continue
		}
		if c := eval(p); c < bestCost || best == nil {
			bestCost = c
			best = p
		}
	}
	return append([]float64(nil), best...), bestCost
}
