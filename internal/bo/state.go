package bo

import (
	"errors"
	"fmt"
)

// State is a phase of the optimisation loop.
type State int

const (
	Initializing State = iota
	Sampling
	Evaluating
	Updating
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Sampling:
		return "sampling"
	case Evaluating:
		return "evaluating"
	case Updating:
		return "updating"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the reason a run terminated.
type Status int

const (
	// Running is the status of a loop that has not terminated.
	Running Status = iota
	BudgetExhausted
	Converged
	EvaluationFailed
	// ModelFailed means the surrogate could not be fitted even after
	// jittering the noise.
	ModelFailed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case BudgetExhausted:
		return "budget_exhausted"
	case Converged:
		return "converged"
	case EvaluationFailed:
		return "evaluation_failed"
	case ModelFailed:
		return "model_failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for c := Running; c <= Cancelled; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

var (
	// ErrEvaluationFailed is matched by every *EvaluationError.
	ErrEvaluationFailed = errors.New("evaluation failed")
	// ErrTerminated is returned by Run on a loop that already terminated.
	ErrTerminated = errors.New("optimisation loop already terminated")
)

// EvaluationError reports an objective failure at Point, in user
// coordinates. The point is not recorded as an observation.
type EvaluationError struct {
	Point []float64
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed at %v: %v", e.Point, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluationFailed
}
