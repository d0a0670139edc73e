package bo

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when the loop stops early.
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patience is the number of consecutive iterations without a
	// significant improvement of the incumbent before stopping.
	Patience int `json:"patience" yaml:"patience"`

	// Threshold is the minimum absolute decrease of the incumbent that
	// counts as progress.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConvergenceConfig returns the convergence defaults: disabled, so a
// run spends its whole budget unless asked otherwise.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   false,
		Patience:  20,
		Threshold: 1e-6,
	}
}

// ConvergenceTracker tracks the incumbent history and detects stagnation.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Baseline records the incumbent the first iteration is measured against.
// It has no effect once the tracker holds history.
func (c *ConvergenceTracker) Baseline(incumbent float64) {
	if !c.config.Enabled || len(c.history) > 0 {
		return
	}
	c.history = append(c.history, incumbent)
	c.best = math.Min(c.best, incumbent)
	c.lastSignificant = incumbent
}

// Update records the incumbent after an iteration and returns true once
// the incumbent has stagnated for Patience iterations.
func (c *ConvergenceTracker) Update(incumbent float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, incumbent)
	c.best = math.Min(c.best, incumbent)

	if len(c.history) == 1 {
		c.lastSignificant = incumbent
		return false
	}

	improvement := c.lastSignificant - incumbent
	if improvement >= c.config.Threshold {
		c.lastSignificant = incumbent
		c.staleCount = 0
		slog.Debug("Incumbent improved", "best", incumbent, "improvement", improvement)
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best", c.best,
		)
		return true
	}
	return false
}

// Best returns the best incumbent seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns a copy of the recorded incumbents.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of iterations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
