// Package bo implements the sequential design loop: an initial design,
// then repeated surrogate fitting, acquisition maximisation, objective
// evaluation and surrogate update until the budget is spent or the
// incumbent stops improving.
package bo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/evaluator"
	"github.com/cwbudde/bayesopt/internal/opt"
	"github.com/cwbudde/bayesopt/internal/space"
	"github.com/cwbudde/bayesopt/internal/surrogate"
)

// Phase distinguishes initial-design evaluations from sequential ones.
type Phase string

const (
	PhaseInitial    Phase = "initial"
	PhaseSequential Phase = "sequential"
)

// Event is emitted to Config.Progress after every completed evaluation.
// Iteration is 0 during the initial design and 1-based afterwards.
type Event struct {
	Phase      Phase
	Iteration  int
	Evaluation int
	Point      []float64
	Value      float64
	Best       float64
	BestPoint  []float64
	Criterion  string
}

// Config assembles a loop from already-built components.
type Config struct {
	// Bounds is the user's search box. The loop itself works in the unit
	// cube and maps points through Bounds for evaluation.
	Bounds    space.Bounds
	Surrogate surrogate.Options
	// Criterion defaults to expected improvement.
	Criterion acquisition.Criterion
	// Optimizer maximises the criterion over the unit cube. It defaults to
	// Mayfly followed by a Nelder-Mead polish.
	Optimizer opt.Optimizer

	Design         design.Kind
	InitialSamples int
	Iterations     int

	// RelearnEvery re-estimates the kernel length scale every k
	// iterations; 0 disables re-learning.
	RelearnEvery   int
	LengthScaleMin float64
	LengthScaleMax float64

	// JitterFactor multiplies the noise on a singular Gram matrix before the
	// single retry.
	JitterFactor float64

	Convergence ConvergenceConfig
	Seed        uint64

	// Progress, if set, is called synchronously after every evaluation.
	Progress func(Event)
}

func (c *Config) validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if c.InitialSamples < 1 {
		return fmt.Errorf("initial samples must be >= 1, got %d", c.InitialSamples)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.RelearnEvery < 0 {
		return fmt.Errorf("relearn period must be >= 0, got %d", c.RelearnEvery)
	}
	if c.Convergence.Enabled && c.Convergence.Patience < 1 {
		return fmt.Errorf("convergence patience must be >= 1, got %d", c.Convergence.Patience)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Criterion == nil {
		c.Criterion = &acquisition.ExpectedImprovement{Exponent: 1}
	}
	if c.Optimizer == nil {
		c.Optimizer = &opt.Polish{Global: opt.NewMayfly(50, 20, int64(c.Seed))}
	}
	if c.LengthScaleMin <= 0 {
		c.LengthScaleMin = 1e-2
	}
	if c.LengthScaleMax <= c.LengthScaleMin {
		c.LengthScaleMax = math.Max(10, 10*c.LengthScaleMin)
	}
	if !(c.JitterFactor > 1) {
		c.JitterFactor = 100
	}
}

// Result is the outcome of a run. A failed run still carries the
// incumbent found before the failure.
type Result struct {
	// BestValue is +Inf and BestPoint is nil when nothing was evaluated
	// successfully.
	BestValue   float64
	BestPoint   []float64
	Status      Status
	Iterations  int
	Evaluations int
	// History holds the observed values in evaluation order.
	History     []float64
	LengthScale float64
	Criterion   string
}

// HasIncumbent reports whether at least one evaluation succeeded.
func (r *Result) HasIncumbent() bool { return r.BestPoint != nil }

// Loop is a single optimisation run. It is not safe for concurrent use and
// shares no state with other loops.
type Loop struct {
	cfg   Config
	eval  evaluator.Evaluator
	model *surrogate.Model
	rng   *rand.Rand

	tracker *ConvergenceTracker
	state   State
	status  Status

	iteration   int
	evaluations int
	best        float64
	bestPoint   []float64
	history     []float64
	lastCrit    string
}

// New validates cfg and builds a loop around a fresh surrogate.
func New(cfg Config, eval evaluator.Evaluator) (*Loop, error) {
	if eval == nil {
		return nil, errors.New("evaluator is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	cfg.applyDefaults()

	model, err := surrogate.New(cfg.Bounds.Dim(), cfg.Surrogate)
	if err != nil {
		return nil, fmt.Errorf("failed to build surrogate: %w", err)
	}

	return &Loop{
		cfg:     cfg,
		eval:    eval,
		model:   model,
		rng:     rand.New(rand.NewPCG(cfg.Seed, 0x626f)),
		tracker: NewConvergenceTracker(cfg.Convergence),
		state:   Initializing,
		best:    math.Inf(1),
	}, nil
}

// State returns the current phase.
func (l *Loop) State() State { return l.state }

// Model exposes the surrogate for inspection.
func (l *Loop) Model() *surrogate.Model { return l.model }

func (l *Loop) setState(s State) {
	if l.state != s {
		slog.Debug("Loop state transition", "from", l.state, "to", s, "iteration", l.iteration)
	}
	l.state = s
}

// Run drives the loop to termination. The returned error is nil for
// BudgetExhausted and Converged. For EvaluationFailed it is an
// *EvaluationError, for Cancelled the context error. The result is never
// nil.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if l.state == Terminated {
		return l.result(), ErrTerminated
	}

	slog.Info("Optimisation started",
		"dim", l.cfg.Bounds.Dim(),
		"initial_samples", l.cfg.InitialSamples,
		"iterations", l.cfg.Iterations,
		"criterion", l.cfg.Criterion.Name(),
		"design", l.cfg.Design,
	)

	if err := l.initialize(ctx); err != nil {
		return l.terminate(err)
	}
	l.tracker.Baseline(l.best)

	for l.iteration < l.cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return l.terminate(err)
		}

		l.setState(Sampling)
		u, err := l.propose()
		if err != nil {
			return l.terminate(err)
		}

		l.setState(Evaluating)
		y, err := l.evaluate(ctx, u)
		if err != nil {
			return l.terminate(err)
		}

		l.setState(Updating)
		if err := l.record(u, y, PhaseSequential, l.iteration+1); err != nil {
			return l.terminate(err)
		}
		l.iteration++
		l.relearn()

		slog.Debug("Iteration complete",
			"iteration", l.iteration,
			"value", y,
			"best", l.best,
			"criterion", l.lastCrit,
		)

		if l.tracker.Update(l.best) {
			l.status = Converged
			return l.terminate(nil)
		}
	}

	l.status = BudgetExhausted
	return l.terminate(nil)
}

func (l *Loop) initialize(ctx context.Context) error {
	if l.model.Len() > 0 {
		return nil
	}
	l.setState(Initializing)

	points, err := design.Generate(l.cfg.Design, l.cfg.InitialSamples, l.cfg.Bounds.Dim(), l.rng)
	if err != nil {
		return err
	}
	l.lastCrit = l.cfg.Design.String()
	for _, u := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		y, err := l.evaluate(ctx, u)
		if err != nil {
			return err
		}
		if err := l.record(u, y, PhaseInitial, 0); err != nil {
			return err
		}
	}
	slog.Debug("Initial design evaluated", "samples", len(points), "best", l.best)
	return nil
}

// fit fits the surrogate, retrying once with a jittered noise diagonal when
// the Gram matrix is singular.
func (l *Loop) fit() (*surrogate.Posterior, error) {
	post, err := l.model.Fit()
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, surrogate.ErrSingularCovariance) {
		return nil, err
	}

	previous := l.model.Noise()
	noise := l.model.Jitter(l.cfg.JitterFactor)
	slog.Warn("Singular covariance, retrying with jitter",
		"previous_noise", previous,
		"noise", noise,
		"observations", l.model.Len(),
		"error", err,
	)
	post, err = l.model.Fit()
	if err != nil {
		return nil, fmt.Errorf("fit failed after jitter: %w", err)
	}
	return post, nil
}

func (l *Loop) propose() ([]float64, error) {
	post, err := l.fit()
	if err != nil {
		return nil, err
	}

	crit := l.cfg.Criterion
	if a, ok := crit.(acquisition.Annealer); ok {
		a.Anneal(l.iteration + 1)
	}

	dim := l.cfg.Bounds.Dim()
	unit := space.UnitCube(dim)
	best := l.model.IncumbentNormalized()

	pf, ok := crit.(acquisition.Portfolio)
	if !ok {
		x, _ := opt.Maximize(l.cfg.Optimizer, scorer(post, crit, best), unit.Lower, unit.Upper, dim)
		l.lastCrit = crit.Name()
		if alt, ok := crit.(*acquisition.Alternate); ok {
			l.lastCrit = alt.Current().Name()
		}
		return x, nil
	}

	members := pf.Members()
	candidates := make([][]float64, len(members))
	losses := make([]float64, len(members))
	for i, m := range members {
		x, _ := opt.Maximize(l.cfg.Optimizer, scorer(post, m, best), unit.Lower, unit.Upper, dim)
		p, err := post.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s candidate: %w", m.Name(), err)
		}
		candidates[i] = x
		losses[i] = pf.Loss(p)
	}
	chosen := pf.Select(losses)
	l.lastCrit = members[chosen].Name()
	slog.Debug("Portfolio selected criterion", "criterion", l.lastCrit, "losses", losses)
	return candidates[chosen], nil
}

func scorer(post *surrogate.Posterior, c acquisition.Criterion, best float64) func([]float64) float64 {
	return func(u []float64) float64 {
		p, err := post.Predict(u)
		if err != nil {
			return math.Inf(-1)
		}
		return c.Score(p, best)
	}
}

func (l *Loop) evaluate(ctx context.Context, u []float64) (float64, error) {
	x := l.cfg.Bounds.FromUnit(u)
	y, err := l.eval.Evaluate(ctx, x)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &EvaluationError{Point: x, Err: err}
	}
	return y, nil
}

// record adds a completed evaluation to the surrogate and the incumbent.
func (l *Loop) record(u []float64, y float64, phase Phase, iteration int) error {
	x := l.cfg.Bounds.FromUnit(u)
	if err := l.model.AddObservation(u, y); err != nil {
		return &EvaluationError{Point: x, Err: err}
	}
	l.evaluations++
	l.history = append(l.history, y)
	if y < l.best {
		l.best = y
		l.bestPoint = x
	}

	if l.cfg.Progress != nil {
		l.cfg.Progress(Event{
			Phase:      phase,
			Iteration:  iteration,
			Evaluation: l.evaluations,
			Point:      x,
			Value:      y,
			Best:       l.best,
			BestPoint:  append([]float64(nil), l.bestPoint...),
			Criterion:  l.lastCrit,
		})
	}
	return nil
}

func (l *Loop) relearn() {
	k := l.cfg.RelearnEvery
	if k <= 0 || l.iteration%k != 0 {
		return
	}
	if _, err := l.model.RelearnLengthScale(l.cfg.LengthScaleMin, l.cfg.LengthScaleMax, 0); err != nil {
		slog.Warn("Length scale re-learning failed, keeping kernel", "iteration", l.iteration, "error", err)
	}
}

func (l *Loop) terminate(err error) (*Result, error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrEvaluationFailed):
		l.status = EvaluationFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		l.status = Cancelled
	default:
		l.status = ModelFailed
	}
	l.setState(Terminated)

	res := l.result()
	attrs := []any{
		"status", res.Status,
		"best", res.BestValue,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
	}
	if err != nil {
		slog.Warn("Optimisation stopped", append(attrs, "error", err)...)
	} else {
		slog.Info("Optimisation finished", attrs...)
	}
	return res, err
}

func (l *Loop) result() *Result {
	return &Result{
		BestValue:   l.best,
		BestPoint:   append([]float64(nil), l.bestPoint...),
		Status:      l.status,
		Iterations:  l.iteration,
		Evaluations: l.evaluations,
		History:     append([]float64(nil), l.history...),
		LengthScale: l.model.Kernel().LengthScale(),
		Criterion:   l.cfg.Criterion.Name(),
	}
}
