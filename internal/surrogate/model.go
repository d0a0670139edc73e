package surrogate

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

// Process selects the predictive family of the surrogate.
type Process int

const (
	// Gaussian is the Gaussian process with a Normal-Inverse-Gamma hyperprior
	// on the mean and signal variance.
	Gaussian Process = iota
	// StudentT uses the same posterior structure with Student-t predictive
	// marginals (heavier tails).
	StudentT
)

func (p Process) String() string {
	switch p {
	case Gaussian:
		return "gaussian"
	case StudentT:
		return "student_t"
	}
	return fmt.Sprintf("process(%d)", int(p))
}

// ParseProcess maps a configuration name to a Process.
func ParseProcess(s string) (Process, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gaussian", "gp", "gaussian_process":
		return Gaussian, nil
	case "student_t", "studentt", "stp", "student_t_process":
		return StudentT, nil
	}
	return 0, fmt.Errorf("unknown surrogate process %q", s)
}

// Prior holds the Normal-Inverse-Gamma hyperprior parameters.
type Prior struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
	// Delta is the prior variance scale of the constant mean.
	Delta float64 `json:"delta" yaml:"delta"`
}

// DefaultPrior returns alpha=1, beta=1, delta=1000.
func DefaultPrior() Prior {
	return Prior{Alpha: 1, Beta: 1, Delta: 1000}
}

// Validate checks that all prior parameters are strictly positive.
func (p Prior) Validate() error {
	check := func(name string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return &kernel.HyperparameterError{Name: name, Value: v, Want: "finite and > 0"}
		}
		return nil
	}
	if err := check("alpha", p.Alpha); err != nil {
		return err
	}
	if err := check("beta", p.Beta); err != nil {
		return err
	}
	return check("delta", p.Delta)
}

// Options configures a Model.
type Options struct {
	Kernel    *kernel.Kernel
	Prior     Prior
	Noise     float64
	Normalize bool
	Process   Process
}

// MinJitter is the smallest diagonal noise Jitter will leave in place.
const MinJitter = 1e-8

// Model owns the observation set and its derived posterior. It is not safe
// for concurrent use; each optimisation loop owns exactly one.
type Model struct {
	dim       int
	kern      *kernel.Kernel
	prior     Prior
	noise     float64
	normalize bool
	process   Process

	xs [][]float64
	ys []float64

	// ny is the normalized response cache. It is rebuilt whenever the
	// argmin or argmax of ys changes and extended otherwise.
	ny     []float64
	minIdx int
	maxIdx int

	post *Posterior
}

// New builds an empty surrogate over dim-dimensional inputs.
func New(dim int, opts Options) (*Model, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dim must be >= 1, got %d", ErrDimensionMismatch, dim)
	}
	if opts.Kernel == nil {
		return nil, fmt.Errorf("%w: kernel is required", ErrInvalidHyperparameter)
	}
	if err := opts.Prior.Validate(); err != nil {
		return nil, err
	}
	if !(opts.Noise >= 0) || math.IsInf(opts.Noise, 0) {
		return nil, &kernel.HyperparameterError{Name: "noise", Value: opts.Noise, Want: "finite and >= 0"}
	}
	if opts.Process != Gaussian && opts.Process != StudentT {
		return nil, fmt.Errorf("%w: unknown process %d", ErrInvalidHyperparameter, int(opts.Process))
	}

	return &Model{
		dim:       dim,
		kern:      opts.Kernel,
		prior:     opts.Prior,
		noise:     opts.Noise,
		normalize: opts.Normalize,
		process:   opts.Process,
		minIdx:    -1,
		maxIdx:    -1,
	}, nil
}

// AddObservation appends (x, y) and invalidates the posterior.
func (m *Model) AddObservation(x []float64, y float64) error {
	if len(x) != m.dim {
		return &DimensionError{Want: m.dim, Got: len(x)}
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: y=%v", ErrInvalidObservation, y)
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: x[%d]=%v", ErrInvalidObservation, i, v)
		}
	}

	m.xs = append(m.xs, append([]float64(nil), x...))
	m.ys = append(m.ys, y)
	m.post = nil
	m.updateNormalization()
	return nil
}

func (m *Model) updateNormalization() {
	last := len(m.ys) - 1
	if !m.normalize {
		m.ny = append(m.ny, m.ys[last])
		m.trackExtremes(last)
		return
	}
	if m.trackExtremes(last) {
		m.renormalize()
		return
	}
	m.ny = append(m.ny, m.Normalize(m.ys[last]))
}

// trackExtremes updates the argmin/argmax indices and reports whether
// either changed. Ties keep the earlier index.
func (m *Model) trackExtremes(i int) bool {
	changed := false
	if m.minIdx < 0 || m.ys[i] < m.ys[m.minIdx] {
		m.minIdx = i
		changed = true
	}
	if m.maxIdx < 0 || m.ys[i] > m.ys[m.maxIdx] {
		m.maxIdx = i
		changed = true
	}
	return changed
}

func (m *Model) renormalize() {
	m.ny = m.ny[:0]
	for _, y := range m.ys {
		m.ny = append(m.ny, m.Normalize(y))
	}
}

func (m *Model) scale() (lo, span float64) {
	if m.minIdx < 0 {
		return 0, 1
	}
	lo = m.ys[m.minIdx]
	span = m.ys[m.maxIdx] - lo
	if span == 0 {
		span = 1
	}
	return lo, span
}

// Normalize maps an objective value to the surrogate's response scale.
// It is the identity when normalization is disabled.
func (m *Model) Normalize(y float64) float64 {
	if !m.normalize {
		return y
	}
	lo, span := m.scale()
	return (y - lo) / span
}

// Denormalize maps a response-scale value back to objective units.
func (m *Model) Denormalize(ny float64) float64 {
	if !m.normalize {
		return ny
	}
	lo, span := m.scale()
	return ny*span + lo
}

// DenormalizeStdDev maps a response-scale standard deviation to objective units.
func (m *Model) DenormalizeStdDev(sd float64) float64 {
	if !m.normalize {
		return sd
	}
	_, span := m.scale()
	return sd * span
}

// Len returns the number of observations.
func (m *Model) Len() int { return len(m.ys) }

// Dim returns the fixed input dimensionality.
func (m *Model) Dim() int { return m.dim }

// Kernel returns the current kernel.
func (m *Model) Kernel() *kernel.Kernel { return m.kern }

// SetKernel replaces the kernel and invalidates the posterior.
func (m *Model) SetKernel(k *kernel.Kernel) {
	m.kern = k
	m.post = nil
}

// Noise returns the current diagonal observation noise.
func (m *Model) Noise() float64 { return m.noise }

// Process returns the predictive family.
func (m *Model) Process() Process { return m.process }

// Jitter raises the diagonal noise by factor (at least to MinJitter) and
// invalidates the posterior. It returns the new noise level.
func (m *Model) Jitter(factor float64) float64 {
	if !(factor > 1) {
		factor = 10
	}
	m.noise = math.Max(m.noise*factor, MinJitter)
	m.post = nil
	return m.noise
}

// Observation returns a copy of the i-th observation.
func (m *Model) Observation(i int) ([]float64, float64) {
	return append([]float64(nil), m.xs[i]...), m.ys[i]
}

// NormalizedResponses returns a copy of the normalized response vector.
func (m *Model) NormalizedResponses() []float64 {
	return append([]float64(nil), m.ny...)
}

// BestIndex returns the index of the smallest observed value, or -1.
func (m *Model) BestIndex() int { return m.minIdx }

// IncumbentNormalized returns the smallest observed value on the response
// scale. It is the reference value acquisition criteria compare against.
func (m *Model) IncumbentNormalized() float64 {
	if m.minIdx < 0 {
		return math.Inf(1)
	}
	return m.ny[m.minIdx]
}
