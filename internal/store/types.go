package store

import (
	"math"
	"time"

	"github.com/cwbudde/bayesopt/internal/bo"
	"github.com/cwbudde/bayesopt/internal/config"
)

// RunRecord is the persisted outcome of one optimisation run. It holds the
// result only; the surrogate itself is never serialized.
type RunRecord struct {
	ID        string `json:"id"`
	Objective string `json:"objective"`
	Dim       int    `json:"dim"`

	Config config.Config `json:"config"`

	// BestValue is nil when no evaluation succeeded.
	BestValue   *float64  `json:"bestValue,omitempty"`
	BestPoint   []float64 `json:"bestPoint,omitempty"`
	Status      bo.Status `json:"status"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	LengthScale float64   `json:"lengthScale"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Error is the failure message of an unsuccessful run.
	Error string `json:"error,omitempty"`
}

// RunInfo summarizes a run for listings.
type RunInfo struct {
	ID          string    `json:"id"`
	Objective   string    `json:"objective"`
	Dim         int       `json:"dim"`
	Status      bo.Status `json:"status"`
	BestValue   *float64  `json:"bestValue,omitempty"`
	Evaluations int       `json:"evaluations"`
	Finished    time.Time `json:"finished"`
}

// NewRunRecord converts a loop result into a record.
func NewRunRecord(id, objective string, dim int, cfg config.Config, res *bo.Result, runErr error, started time.Time) *RunRecord {
	rec := &RunRecord{
		ID:          id,
		Objective:   objective,
		Dim:         dim,
		Config:      cfg,
		Status:      res.Status,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		LengthScale: res.LengthScale,
		Started:     started,
		Finished:    time.Now(),
	}
	if res.HasIncumbent() {
		best := res.BestValue
		rec.BestValue = &best
		rec.BestPoint = append([]float64(nil), res.BestPoint...)
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// ToInfo converts a full record to its listing summary.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		ID:          r.ID,
		Objective:   r.Objective,
		Dim:         r.Dim,
		Status:      r.Status,
		BestValue:   r.BestValue,
		Evaluations: r.Evaluations,
		Finished:    r.Finished,
	}
}

// Duration returns the wall-clock run time.
func (r *RunRecord) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Validate checks if the record has valid data.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Objective == "" {
		return &ValidationError{Field: "Objective", Reason: "cannot be empty"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Started.IsZero() {
		return &ValidationError{Field: "Started", Reason: "cannot be zero"}
	}
	if r.Finished.Before(r.Started) {
		return &ValidationError{Field: "Finished", Reason: "cannot precede Started"}
	}
	if r.BestValue != nil {
		if math.IsNaN(*r.BestValue) || math.IsInf(*r.BestValue, 0) {
			return &ValidationError{Field: "BestValue", Reason: "must be finite"}
		}
		if len(r.BestPoint) == 0 {
			return &ValidationError{Field: "BestPoint", Reason: "required with BestValue"}
		}
	}
	if r.Dim > 0 && len(r.BestPoint) > 0 && len(r.BestPoint) != r.Dim {
		return &ValidationError{Field: "BestPoint", Reason: "length does not match Dim"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
