package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

var _ Optimizer = (*MayflyAdapter)(nil)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// Each Run is reseeded from a sequence derived from seed, so repeated runs
// within one optimisation loop explore differently but reproducibly.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
	runs     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. popSize must be >= 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, 20),
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// The library takes scalar bounds, so every axis uses lower[0] and upper[0];
// the optimisation loop always searches the unit cube.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()

	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed + m.runs))
	m.runs++

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, using box centre", "error", err)
		centre := make([]float64, dim)
		for i := range centre {
			centre[i] = (lower[0] + upper[0]) / 2
		}
		return centre, eval(centre)
	}

	best := clampInto(result.GlobalBest.Position, lower, upper)
	return best, result.GlobalBest.Cost
}
