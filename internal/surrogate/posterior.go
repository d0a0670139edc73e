package surrogate

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

// MaxCondition is the largest Gram matrix condition number Fit accepts.
const MaxCondition = 1e15

// Prediction is the predictive marginal at a query point, on the
// normalized response scale.
type Prediction struct {
	Mean   float64
	StdDev float64
	// DoF is the Student-t degrees of freedom, or 0 for a Gaussian marginal.
	DoF float64
}

// Posterior is an immutable snapshot of the fitted model.
type Posterior struct {
	n       int
	noise   float64
	process Process
	kern    *kernel.Kernel
	xs      [][]float64

	gram  *mat.SymDense
	chol  mat.Cholesky
	lower mat.TriDense

	uK      *mat.VecDense // K⁻¹u
	lu      *mat.VecDense // L⁻¹u
	weights *mat.VecDense // K⁻¹(ny - mu·u)

	eta    float64
	yKy    float64
	mu     float64
	sigma2 float64
	logDet float64
	dof    float64
}

// Fit builds the Gram matrix, factorizes it and computes the posterior
// parameters. The result is cached until the next observation or kernel
// change.
func (m *Model) Fit() (*Posterior, error) {
	if m.post != nil {
		return m.post, nil
	}
	p, err := fit(m.kern, m.xs, m.ny, m.noise, m.prior, m.process)
	if err != nil {
		return nil, err
	}
	m.post = p
	return p, nil
}

func fit(k *kernel.Kernel, xs [][]float64, ny []float64, noise float64, prior Prior, process Process) (*Posterior, error) {
	n := len(xs)
	if n == 0 {
		return nil, ErrNoObservations
	}

	gram := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		gram.SetSym(i, i, k.Evaluate(xs[i], xs[i])+noise)
		for j := i + 1; j < n; j++ {
			gram.SetSym(i, j, k.Evaluate(xs[i], xs[j]))
		}
	}

	p := &Posterior{
		n:       n,
		noise:   noise,
		process: process,
		kern:    k,
		xs:      xs[:n:n],
		gram:    gram,
	}

	if ok := p.chol.Factorize(gram); !ok {
		return nil, &SingularError{N: n, Noise: noise, Cond: math.Inf(1), Reason: "matrix is not positive definite"}
	}
	if c := p.chol.Cond(); math.IsNaN(c) || c > MaxCondition {
		return nil, &SingularError{N: n, Noise: noise, Cond: c, Reason: "condition number too large"}
	}
	p.chol.LTo(&p.lower)
	p.logDet = p.chol.LogDet()

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	u := mat.NewVecDense(n, ones)
	y := mat.NewVecDense(n, append([]float64(nil), ny...))

	p.uK = mat.NewVecDense(n, nil)
	if err := p.chol.SolveVecTo(p.uK, u); err != nil {
		return nil, &SingularError{N: n, Noise: noise, Cond: p.chol.Cond(), Reason: err.Error()}
	}
	p.lu = mat.NewVecDense(n, nil)
	if err := p.lu.SolveVec(&p.lower, u); err != nil {
		return nil, &SingularError{N: n, Noise: noise, Cond: p.chol.Cond(), Reason: err.Error()}
	}
	ky := mat.NewVecDense(n, nil)
	if err := p.chol.SolveVecTo(ky, y); err != nil {
		return nil, &SingularError{N: n, Noise: noise, Cond: p.chol.Cond(), Reason: err.Error()}
	}

	p.eta = mat.Dot(p.uK, u) + 1/prior.Delta
	p.yKy = mat.Dot(y, ky)
	p.mu = mat.Dot(p.uK, y) / p.eta

	// yᵀ(K + δuuᵀ)⁻¹y by Sherman-Morrison.
	residual := math.Max(p.yKy-p.eta*p.mu*p.mu, 0)
	switch process {
	case StudentT:
		p.dof = 2*prior.Alpha + float64(n)
		p.sigma2 = (prior.Beta/prior.Alpha + residual) / p.dof
	default:
		p.sigma2 = (prior.Beta + residual) / (prior.Alpha + float64(n) + 2)
	}
	if math.IsNaN(p.sigma2) || math.IsInf(p.sigma2, 0) || p.sigma2 <= 0 {
		return nil, &SingularError{N: n, Noise: noise, Cond: p.chol.Cond(), Reason: fmt.Sprintf("posterior scale %v", p.sigma2)}
	}

	// weights = K⁻¹(ny - mu·u) = K⁻¹ny - mu·K⁻¹u
	p.weights = mat.NewVecDense(n, nil)
	p.weights.AddScaledVec(ky, -p.mu, p.uK)

	slog.Debug("Surrogate fitted",
		"n", n,
		"mu", p.mu,
		"sigma2", p.sigma2,
		"eta", p.eta,
		"log_det", p.logDet,
	)
	return p, nil
}

// Predict returns the predictive marginal at q, fitting first if needed.
func (m *Model) Predict(q []float64) (Prediction, error) {
	if len(q) != m.dim {
		return Prediction{}, &DimensionError{Want: m.dim, Got: len(q)}
	}
	p, err := m.Fit()
	if err != nil {
		return Prediction{}, err
	}
	return p.Predict(q)
}

// Predict returns the predictive marginal at q.
func (p *Posterior) Predict(q []float64) (Prediction, error) {
	if len(q) != len(p.xs[0]) {
		return Prediction{}, &DimensionError{Want: len(p.xs[0]), Got: len(q)}
	}

	r := mat.NewVecDense(p.n, nil)
	for i, x := range p.xs {
		r.SetVec(i, p.kern.Evaluate(x, q))
	}

	// v = L⁻¹r, so rKr = vᵀv and uKr = (L⁻¹u)ᵀv.
	var v mat.VecDense
	if err := v.SolveVec(&p.lower, r); err != nil {
		return Prediction{}, &SingularError{N: p.n, Noise: p.noise, Cond: p.chol.Cond(), Reason: err.Error()}
	}
	rKr := mat.Dot(&v, &v)
	uKr := mat.Dot(p.lu, &v)

	mean := p.mu + mat.Dot(r, p.weights)
	variance := p.sigma2 * (p.kern.Evaluate(q, q) - rKr + (1-uKr)*(1-uKr)/p.eta)
	if math.IsNaN(mean) || math.IsNaN(variance) {
		return Prediction{}, &SingularError{N: p.n, Noise: p.noise, Cond: p.chol.Cond(), Reason: "prediction is NaN"}
	}

	return Prediction{
		Mean:   mean,
		StdDev: math.Sqrt(math.Max(variance, 0)),
		DoF:    p.dof,
	}, nil
}

// N returns the number of observations the posterior was fitted on.
func (p *Posterior) N() int { return p.n }

// Mu returns the posterior mean of the constant process mean.
func (p *Posterior) Mu() float64 { return p.mu }

// Sigma2 returns the posterior signal scale.
func (p *Posterior) Sigma2() float64 { return p.sigma2 }

// Eta returns uK·uᵀ + 1/delta.
func (p *Posterior) Eta() float64 { return p.eta }

// YKY returns ny·K⁻¹·nyᵀ.
func (p *Posterior) YKY() float64 { return p.yKy }

// LogDet returns log det(K).
func (p *Posterior) LogDet() float64 { return p.logDet }

// Det returns det(K). It underflows to 0 for large, highly correlated sets;
// prefer LogDet.
func (p *Posterior) Det() float64 { return math.Exp(p.logDet) }

// DoF returns the predictive degrees of freedom, or 0 for Gaussian.
func (p *Posterior) DoF() float64 { return p.dof }

// Cond returns the condition number of the Gram matrix.
func (p *Posterior) Cond() float64 { return p.chol.Cond() }

// UK returns a copy of u·K⁻¹.
func (p *Posterior) UK() []float64 {
	return append([]float64(nil), p.uK.RawVector().Data...)
}

// Gram returns a copy of the Gram matrix including the noise diagonal.
func (p *Posterior) Gram() *mat.SymDense {
	g := mat.NewSymDense(p.n, nil)
	g.CopySym(p.gram)
	return g
}
