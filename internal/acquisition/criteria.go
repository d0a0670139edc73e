package acquisition

import (
	"math"
	"math/rand/v2"

	"github.com/cwbudde/bayesopt/internal/surrogate"
)

var (
	_ Criterion = (*ExpectedImprovement)(nil)
	_ Criterion = (*LowerConfidenceBound)(nil)
	_ Criterion = (*AnnealedLCB)(nil)
	_ Criterion = (*ProbabilityOfImprovement)(nil)
	_ Criterion = (*ExpectedReturn)(nil)
	_ Criterion = (*GreedyAOptimality)(nil)
	_ Criterion = (*ThompsonSampling)(nil)
	_ Criterion = (*OptimisticSampling)(nil)
	_ Annealer  = (*AnnealedLCB)(nil)
)

// ExpectedImprovement scores the expected amount by which a point improves
// on the incumbent. Exponent > 1 gives the generalized E[I^g] of Schonlau.
type ExpectedImprovement struct {
	Exponent int
}

func (c *ExpectedImprovement) Name() string { return "ei" }

func (c *ExpectedImprovement) Score(p surrogate.Prediction, best float64) float64 {
	if p.StdDev <= 0 {
		return 0
	}
	diff := best - p.Mean
	z := diff / p.StdDev
	g := c.Exponent

	if p.DoF > 1 && g <= 1 {
		cdf, pdf := standard(p, z)
		nu := p.DoF
		ei := diff*cdf + p.StdDev*(nu+z*z)/(nu-1)*pdf
		return math.Max(finiteOr(ei, 0), 0)
	}

	// The generalized form is Gaussian only.
	cdf, pdf := standard(surrogate.Prediction{}, z)
	if g <= 1 {
		return math.Max(finiteOr(diff*cdf+p.StdDev*pdf, 0), 0)
	}

	// E[I^g] = s^g Σ_k (-1)^k C(g,k) z^(g-k) T_k with T_0 = Φ, T_1 = -φ,
	// T_k = -φ z^(k-1) + (k-1) T_(k-2).
	tPrev2, tPrev1 := cdf, -pdf
	sum := math.Pow(z, float64(g))*tPrev2 - float64(g)*math.Pow(z, float64(g-1))*tPrev1
	binom := float64(g)
	for k := 2; k <= g; k++ {
		t := -pdf*math.Pow(z, float64(k-1)) + float64(k-1)*tPrev2
		binom *= float64(g-k+1) / float64(k)
		sign := 1.0
		if k%2 == 1 {
			sign = -1
		}
		sum += sign * binom * math.Pow(z, float64(g-k)) * t
		tPrev2, tPrev1 = tPrev1, t
	}
	return math.Max(finiteOr(math.Pow(p.StdDev, float64(g))*sum, 0), 0)
}

// LowerConfidenceBound scores -(mean - kappa*stddev).
type LowerConfidenceBound struct {
	Kappa float64
}

func (c *LowerConfidenceBound) Name() string { return "lcb" }

func (c *LowerConfidenceBound) Score(p surrogate.Prediction, _ float64) float64 {
	sd := p.StdDev
	if p.DoF > 0 {
		sd /= math.Sqrt(p.DoF)
	}
	return -(p.Mean - c.Kappa*sd)
}

// AnnealedLCB grows kappa with the iteration count following Srinivas et al.
type AnnealedLCB struct {
	Coef  float64
	Dim   int
	kappa float64
}

func (c *AnnealedLCB) Name() string { return "lcba" }

// Anneal sets kappa for the given 1-based iteration.
func (c *AnnealedLCB) Anneal(iteration int) {
	t := float64(max(iteration, 1))
	d := float64(max(c.Dim, 1))
	c.kappa = math.Sqrt(2*math.Log(t*t)*(d+1) + math.Log(d)*d*c.Coef)
}

// Kappa returns the current exploration weight.
func (c *AnnealedLCB) Kappa() float64 { return c.kappa }

func (c *AnnealedLCB) Score(p surrogate.Prediction, best float64) float64 {
	return (&LowerConfidenceBound{Kappa: c.kappa}).Score(p, best)
}

// ProbabilityOfImprovement scores P(f(x) < best + epsilon).
type ProbabilityOfImprovement struct {
	Epsilon float64
}

func (c *ProbabilityOfImprovement) Name() string { return "poi" }

func (c *ProbabilityOfImprovement) Score(p surrogate.Prediction, best float64) float64 {
	if p.StdDev <= 0 {
		return 0
	}
	cdf, _ := standard(p, (best-p.Mean+c.Epsilon)/p.StdDev)
	return cdf
}

// ExpectedReturn exploits the predicted mean only.
type ExpectedReturn struct{}

func (ExpectedReturn) Name() string { return "expreturn" }

func (ExpectedReturn) Score(p surrogate.Prediction, _ float64) float64 { return -p.Mean }

// GreedyAOptimality explores by maximizing predictive uncertainty.
type GreedyAOptimality struct{}

func (GreedyAOptimality) Name() string { return "aopt" }

func (GreedyAOptimality) Score(p surrogate.Prediction, _ float64) float64 { return p.StdDev }

// ThompsonSampling scores a random draw from the predictive marginal.
type ThompsonSampling struct {
	rng *rand.Rand
}

// NewThompsonSampling returns a seeded Thompson sampler.
func NewThompsonSampling(seed uint64) *ThompsonSampling {
	return &ThompsonSampling{rng: newRand(seed, 0x7468)}
}

func (c *ThompsonSampling) Name() string { return "thompson" }

func (c *ThompsonSampling) Score(p surrogate.Prediction, _ float64) float64 {
	return -sample(p, c.rng)
}

// OptimisticSampling scores the better of the mean and a random draw.
type OptimisticSampling struct {
	rng *rand.Rand
}

// NewOptimisticSampling returns a seeded optimistic sampler.
func NewOptimisticSampling(seed uint64) *OptimisticSampling {
	return &OptimisticSampling{rng: newRand(seed, 0x6f70)}
}

func (c *OptimisticSampling) Name() string { return "optimistic" }

func (c *OptimisticSampling) Score(p surrogate.Prediction, _ float64) float64 {
	return -math.Min(p.Mean, sample(p, c.rng))
}
