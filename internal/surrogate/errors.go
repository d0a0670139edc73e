package surrogate

import (
	"errors"
	"fmt"

	"github.com/cwbudde/bayesopt/internal/kernel"
)

var (
	// ErrInvalidHyperparameter aliases the kernel sentinel so callers only need
	// one package to classify construction failures.
	ErrInvalidHyperparameter = kernel.ErrInvalidHyperparameter

	// ErrDimensionMismatch is returned when an observation or query has the
	// wrong number of coordinates.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSingularCovariance is returned when the Gram matrix cannot be
	// factorized safely.
	ErrSingularCovariance = errors.New("singular covariance")

	// ErrInvalidObservation is returned for non-finite observation values.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrNoObservations is returned when fitting an empty model.
	ErrNoObservations = errors.New("no observations")
)

// DimensionError reports the expected and received dimensionality.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Is allows errors.Is(err, ErrDimensionMismatch) to match.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// SingularError carries the diagnostics of a failed factorization.
type SingularError struct {
	N      int
	Noise  float64
	Cond   float64
	Reason string
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("singular covariance (n=%d, noise=%g, cond=%g): %s", e.N, e.Noise, e.Cond, e.Reason)
}

// Is allows errors.Is(err, ErrSingularCovariance) to match.
func (e *SingularError) Is(target error) bool {
	return target == ErrSingularCovariance
}
