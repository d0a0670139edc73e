package kernel

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidHyperparameter is returned when a kernel or prior is given a
// hyperparameter outside its valid domain.
var ErrInvalidHyperparameter = errors.New("invalid hyperparameter")

// HyperparameterError describes which hyperparameter was rejected.
type HyperparameterError struct {
	Name  string
	Value float64
	Want  string
}

func (e *HyperparameterError) Error() string {
	return fmt.Sprintf("invalid hyperparameter %s=%g: must be %s", e.Name, e.Value, e.Want)
}

// Is allows errors.Is(err, ErrInvalidHyperparameter) to match.
func (e *HyperparameterError) Is(target error) bool {
	return target == ErrInvalidHyperparameter
}

// Kind selects the correlation family.
type Kind int

const (
	Matern1 Kind = iota
	Matern3
	Matern5
	SquaredExponential
	Exponential
)

var kindNames = map[Kind]string{
	Matern1:            "matern1",
	Matern3:            "matern3",
	Matern5:            "matern5",
	SquaredExponential: "se",
	Exponential:        "exponential",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind. Names are case-insensitive
// and BayesOpt-style spellings such as kMaternISO3 are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "matern1", "maternd1", "kmaterniso1":
		return Matern1, nil
	case "matern3", "maternd3", "kmaterniso3", "":
		return Matern3, nil
	case "matern5", "maternd5", "kmaterniso5":
		return Matern5, nil
	case "se", "sqexp", "squared_exponential", "ksemiso", "kseiso", "gaussian":
		return SquaredExponential, nil
	case "exponential", "exp", "powexp":
		return Exponential, nil
	}
	return 0, fmt.Errorf("unknown kernel kind %q", s)
}

// Config is the immutable kernel description.
type Config struct {
	Kind        Kind
	LengthScale float64
	// Exponent is the power p of the Exponential family, in (0, 2].
	Exponent float64
}

// Kernel evaluates correlations between two points. It is safe for
// concurrent use since it is never mutated after New.
type Kernel struct {
	cfg Config
}

// New validates cfg and builds a kernel.
func New(cfg Config) (*Kernel, error) {
	if !(cfg.LengthScale > 0) || math.IsInf(cfg.LengthScale, 0) {
		return nil, &HyperparameterError{Name: "length_scale", Value: cfg.LengthScale, Want: "finite and > 0"}
	}
	switch cfg.Kind {
	case Matern1, Matern3, Matern5:
	case SquaredExponential:
		cfg.Exponent = 2
	case Exponential:
		if !(cfg.Exponent > 0 && cfg.Exponent <= 2) {
			return nil, &HyperparameterError{Name: "exponent", Value: cfg.Exponent, Want: "in (0, 2]"}
		}
	default:
		return nil, fmt.Errorf("%w: unknown kernel kind %d", ErrInvalidHyperparameter, int(cfg.Kind))
	}
	return &Kernel{cfg: cfg}, nil
}

// Config returns a copy of the kernel's configuration.
func (k *Kernel) Config() Config { return k.cfg }

// LengthScale returns the kernel's length scale.
func (k *Kernel) LengthScale() float64 { return k.cfg.LengthScale }

// WithLengthScale returns a new kernel of the same family with a different
// length scale.
func (k *Kernel) WithLengthScale(l float64) (*Kernel, error) {
	cfg := k.cfg
	cfg.LengthScale = l
	return New(cfg)
}

// Evaluate returns the correlation between x1 and x2. It panics when the
// lengths differ; callers validate dimensions first.
func (k *Kernel) Evaluate(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic(fmt.Sprintf("kernel: dimension mismatch %d != %d", len(x1), len(x2)))
	}
	l := k.cfg.LengthScale

	switch k.cfg.Kind {
	case Matern1:
		return math.Exp(-floats.Distance(x1, x2, 2) / l)

	case Matern3:
		prod, sum := 1.0, 0.0
		for i := range x1 {
			r := math.Sqrt(3) * math.Abs(x1[i]-x2[i]) / l
			prod *= 1 + r
			sum += r
		}
		return prod * math.Exp(-sum)

	case Matern5:
		rho := math.Sqrt(5) * floats.Distance(x1, x2, 2) / l
		return (1 + rho + rho*rho/3) * math.Exp(-rho)

	default:
		p := k.cfg.Exponent
		var sum float64
		for i := range x1 {
			d := math.Abs(x1[i]-x2[i]) / l
			if p == 2 {
				sum += d * d
			} else {
				sum += math.Pow(d, p)
			}
		}
		return math.Exp(-sum)
	}
}
