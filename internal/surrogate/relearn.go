package surrogate

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

// NegLogLikelihood returns the negative log marginal likelihood of the
// normalized responses under the current kernel, with the constant mean and
// signal variance integrated out under the hyperprior (additive constants
// dropped).
func (m *Model) NegLogLikelihood() (float64, error) {
	p, err := m.Fit()
	if err != nil {
		return 0, err
	}
	return p.negLogLikelihood(m.prior), nil
}

func (p *Posterior) negLogLikelihood(prior Prior) float64 {
	// det(K + δuuᵀ) = det(K)·δ·eta and yᵀ(K + δuuᵀ)⁻¹y = yKy − eta·mu².
	quad := math.Max(p.yKy-p.eta*p.mu*p.mu, 0)
	n := float64(p.n)
	return 0.5*p.logDet +
		0.5*math.Log(prior.Delta*p.eta) +
		(prior.Alpha+n/2)*math.Log(prior.Beta+0.5*quad)
}

// RelearnLengthScale minimizes the negative log likelihood over the kernel
// length scale within [lo, hi] using Nelder-Mead in log space. The best
// kernel found replaces the current one. It returns the chosen length scale.
func (m *Model) RelearnLengthScale(lo, hi float64, maxEvals int) (float64, error) {
	if !(lo > 0) || !(hi > lo) {
		return 0, fmt.Errorf("%w: length scale search range [%g, %g]", ErrInvalidHyperparameter, lo, hi)
	}
	if m.Len() == 0 {
		return 0, ErrNoObservations
	}
	if maxEvals <= 0 {
		maxEvals = 40
	}

	logLo, logHi := math.Log(lo), math.Log(hi)
	clamp := func(t float64) float64 { return math.Min(math.Max(t, logLo), logHi) }

	current := m.kern.LengthScale()
	bestL := current
	bestNLL := math.Inf(1)
	if v, err := m.NegLogLikelihood(); err == nil {
		bestNLL = v
	}

	objective := func(x []float64) float64 {
		l := math.Exp(clamp(x[0]))
		k, err := m.kern.WithLengthScale(l)
		if err != nil {
			return math.MaxFloat64
		}
		v, err := m.likelihoodWith(k)
		if err != nil {
			return math.MaxFloat64
		}
		if v < bestNLL {
			bestNLL, bestL = v, l
		}
		return v
	}

	start := clamp(math.Log(current))
	_, err := optimize.Minimize(
		optimize.Problem{Func: objective},
		[]float64{start},
		&optimize.Settings{FuncEvaluations: maxEvals},
		&optimize.NelderMead{SimplexSize: 0.5},
	)
	if err != nil {
		slog.Debug("Length scale search stopped", "error", err)
	}

	if bestL != current {
		k, err := m.kern.WithLengthScale(bestL)
		if err != nil {
			return current, err
		}
		m.SetKernel(k)
	}

	slog.Debug("Length scale relearned",
		"previous", current,
		"length_scale", bestL,
		"neg_log_likelihood", bestNLL,
	)
	return bestL, nil
}

func (m *Model) likelihoodWith(k *kernel.Kernel) (float64, error) {
	p, err := fit(k, m.xs, m.ny, m.noise, m.prior, m.process)
	if err != nil {
		return 0, err
	}
	return p.negLogLikelihood(m.prior), nil
}
