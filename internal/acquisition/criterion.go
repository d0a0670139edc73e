// Package acquisition scores surrogate predictions so the inner optimiser
// can pick the next sample point. Every score is maximized; criteria that
// are naturally minimized are sign-flipped.
package acquisition

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cwbudde/bayesopt/internal/surrogate"
)

// Criterion maps a predictive marginal and the incumbent best value (both on
// the surrogate's response scale) to a utility.
type Criterion interface {
	Score(p surrogate.Prediction, best float64) float64
	Name() string
}

// Annealer is implemented by criteria whose parameters change once per
// loop iteration.
type Annealer interface {
	Anneal(iteration int)
}

// Portfolio is implemented by criteria that choose between member criteria.
// The loop maximizes every member, computes each candidate's Loss, and lets
// Select pick the winner.
type Portfolio interface {
	Criterion
	Members() []Criterion
	Loss(p surrogate.Prediction) float64
	Select(losses []float64) int
}

// Params carries the tunable constants of the built-in criteria.
type Params struct {
	// Kappa is the LCB exploration weight.
	Kappa float64 `json:"kappa" yaml:"kappa"`
	// Epsilon is the POI improvement margin.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
	// Exponent is the generalized EI power g >= 1.
	Exponent int `json:"exponent" yaml:"exponent"`
	// AnnealCoef scales the annealed LCB schedule.
	AnnealCoef float64 `json:"anneal_coef" yaml:"anneal_coef"`
	// Weights are the Sum/Prod member weights; missing entries default to 1.
	Weights []float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	// Dim is the search dimensionality, used by annealed schedules.
	Dim int `json:"-" yaml:"-"`
	// Seed drives every sampling criterion and portfolio selection.
	Seed uint64 `json:"-" yaml:"-"`
}

// DefaultParams returns kappa=1, epsilon=0.01, exponent=1, anneal coef 5.
func DefaultParams() Params {
	return Params{
		Kappa:      1,
		Epsilon:    0.01,
		Exponent:   1,
		AnnealCoef: 5,
		Dim:        1,
	}
}

func newRand(seed uint64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// sample draws from the predictive marginal.
func sample(p surrogate.Prediction, rng *rand.Rand) float64 {
	if p.DoF > 0 {
		return distuv.StudentsT{Mu: p.Mean, Sigma: p.StdDev, Nu: p.DoF, Src: rng}.Rand()
	}
	return distuv.Normal{Mu: p.Mean, Sigma: p.StdDev, Src: rng}.Rand()
}

// standard returns the CDF and PDF of the standardized predictive family at z.
func standard(p surrogate.Prediction, z float64) (cdf, pdf float64) {
	if p.DoF > 0 {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: p.DoF}
		return t.CDF(z), t.Prob(z)
	}
	return distuv.UnitNormal.CDF(z), distuv.UnitNormal.Prob(z)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
