package bo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/evaluator"
	"github.com/cwbudde/bayesopt/internal/kernel"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/opt"
	"github.com/cwbudde/bayesopt/internal/space"
	"github.com/cwbudde/bayesopt/internal/surrogate"
)

func testConfig(t *testing.T, dim, initial, iterations int) Config {
	t.Helper()
	k, err := kernel.New(kernel.Config{Kind: kernel.Matern5, LengthScale: 1})
	require.NoError(t, err)
	return Config{
		Bounds: space.UnitCube(dim),
		Surrogate: surrogate.Options{
			Kernel:    k,
			Prior:     surrogate.DefaultPrior(),
			Noise:     1e-4,
			Normalize: true,
		},
		Optimizer:      &opt.Polish{Global: opt.NewRandomSearch(500, 7), MaxEvals: 300},
		Design:         design.LatinHypercube,
		InitialSamples: initial,
		Iterations:     iterations,
		Seed:           42,
	}
}

func sphere(x []float64) (float64, error) {
	return objective.OffsetSphere(0.53, 10)(x), nil
}

func TestSphereConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("long end-to-end run")
	}
	cfg := testConfig(t, 5, 20, 200)

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BudgetExhausted, res.Status)
	assert.Equal(t, 200, res.Iterations)
	assert.Equal(t, 220, res.Evaluations)
	assert.InDelta(t, 10.0, res.BestValue, 1e-2)

	target := []float64{0.53, 0.53, 0.53, 0.53, 0.53}
	assert.Less(t, floats.Distance(res.BestPoint, target, 2), 0.1)
}

func TestFailingEvaluator(t *testing.T) {
	cfg := testConfig(t, 2, 5, 10)
	loop, err := New(cfg, evaluator.Func(objective.Failing("disk full")))
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluationFailed)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Len(t, evalErr.Point, 2)
	assert.ErrorContains(t, evalErr, "disk full")

	require.NotNil(t, res)
	assert.Equal(t, EvaluationFailed, res.Status)
	assert.False(t, res.HasIncumbent())
	assert.True(t, math.IsInf(res.BestValue, 1))
	assert.Zero(t, res.Evaluations)
	assert.Zero(t, loop.Model().Len())
	assert.Equal(t, Terminated, loop.State())
}

func TestFailureKeepsIncumbent(t *testing.T) {
	calls := 0
	flaky := func(x []float64) (float64, error) {
		calls++
		if calls > 7 {
			return objective.Failing("worker crashed")(x)
		}
		return sphere(x)
	}

	loop, err := New(testConfig(t, 2, 5, 10), evaluator.Func(flaky))
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrEvaluationFailed)
	assert.Equal(t, EvaluationFailed, res.Status)
	assert.True(t, res.HasIncumbent())
	assert.Equal(t, 7, res.Evaluations)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 7, loop.Model().Len())
	assert.Equal(t, floats.Min(res.History), res.BestValue)
}

func TestRunAfterTermination(t *testing.T) {
	loop, err := New(testConfig(t, 1, 3, 2), evaluator.Func(sphere))
	require.NoError(t, err)

	first, err := loop.Run(context.Background())
	require.NoError(t, err)

	again, err := loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, first.BestValue, again.BestValue)
	assert.Equal(t, first.Evaluations, again.Evaluations)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	eval := func(x []float64) (float64, error) {
		calls++
		if calls == 5 {
			cancel()
		}
		return sphere(x)
	}

	loop, err := New(testConfig(t, 2, 10, 10), evaluator.Func(eval))
	require.NoError(t, err)

	res, err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Cancelled, res.Status)
	assert.Equal(t, 5, res.Evaluations)
	assert.True(t, res.HasIncumbent())
}

func TestConvergenceStopsEarly(t *testing.T) {
	cfg := testConfig(t, 2, 4, 50)
	cfg.Convergence = ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 1e-9}

	flat := func([]float64) (float64, error) { return 1, nil }
	loop, err := New(cfg, evaluator.Func(flat))
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Converged, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 1.0, res.BestValue)
}

func TestInitialDesignOnly(t *testing.T) {
	cfg := testConfig(t, 3, 8, 0)
	cfg.Design = design.Uniform
	cfg.Bounds = space.NewBounds(3, -2, 2)

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)

	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BudgetExhausted, res.Status)
	assert.Equal(t, 8, res.Evaluations)
	assert.True(t, cfg.Bounds.Contains(res.BestPoint))
}

func TestProgressEvents(t *testing.T) {
	var events []Event
	cfg := testConfig(t, 2, 4, 6)
	cfg.Progress = func(e Event) { events = append(events, e) }

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)
	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, i+1, e.Evaluation)
		if i < 4 {
			assert.Equal(t, PhaseInitial, e.Phase)
			assert.Equal(t, "lhs", e.Criterion)
			assert.Zero(t, e.Iteration)
		} else {
			assert.Equal(t, PhaseSequential, e.Phase)
			assert.Equal(t, i-3, e.Iteration)
			assert.Equal(t, "ei", e.Criterion)
		}
		if i > 0 {
			assert.LessOrEqual(t, e.Best, events[i-1].Best)
		}
	}
	assert.Equal(t, res.BestValue, events[len(events)-1].Best)
}

func TestPortfolioLoop(t *testing.T) {
	params := acquisition.DefaultParams()
	params.Seed = 3
	crit, err := acquisition.Parse("hedge(ei,lcb,poi)", params)
	require.NoError(t, err)

	cfg := testConfig(t, 2, 5, 8)
	cfg.Criterion = crit
	used := map[string]bool{}
	cfg.Progress = func(e Event) {
		if e.Phase == PhaseSequential {
			used[e.Criterion] = true
		}
	}

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)
	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 13, res.Evaluations)
	for name := range used {
		assert.Contains(t, []string{"ei", "lcb", "poi"}, name)
	}
}

func TestRelearnDuringRun(t *testing.T) {
	cfg := testConfig(t, 2, 6, 6)
	cfg.RelearnEvery = 3
	cfg.LengthScaleMin = 0.05
	cfg.LengthScaleMax = 5

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)
	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.LengthScale, 0.05)
	assert.LessOrEqual(t, res.LengthScale, 5.0)
}

func TestSingularRetry(t *testing.T) {
	cfg := testConfig(t, 1, 3, 3)
	cfg.Surrogate.Noise = 0
	// Every proposal is the same point, so the third fit sees a duplicate row.
	cfg.Optimizer = &opt.Discrete{Points: [][]float64{{0.5}}}

	loop, err := New(cfg, evaluator.Func(sphere))
	require.NoError(t, err)
	res, err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BudgetExhausted, res.Status)
	assert.Greater(t, loop.Model().Noise(), 0.0)
}

func TestModelFailureAfterJitter(t *testing.T) {
	cfg := testConfig(t, 2, 4, 5)
	cfg.Surrogate.Normalize = false
	// Raw responses this large overflow yᵀK⁻¹y, so no amount of jitter
	// yields a finite posterior scale.
	calls := 0
	huge := func([]float64) (float64, error) {
		calls++
		return 1e200 * float64(calls), nil
	}

	loop, err := New(cfg, evaluator.Func(huge))
	require.NoError(t, err)
	res, err := loop.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, surrogate.ErrSingularCovariance)
	var singular *surrogate.SingularError
	require.ErrorAs(t, err, &singular)
	assert.Greater(t, singular.Noise, cfg.Surrogate.Noise, "the failing fit should be the jittered retry")

	assert.Equal(t, ModelFailed, res.Status)
	assert.Equal(t, Terminated, loop.State())
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 4, res.Evaluations)
	require.True(t, res.HasIncumbent())
	assert.Equal(t, 1e200, res.BestValue)
	assert.True(t, cfg.Bounds.Contains(res.BestPoint))
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t, 2, 0, 10)
	_, err := New(cfg, evaluator.Func(sphere))
	assert.Error(t, err)

	cfg = testConfig(t, 2, 5, 10)
	cfg.Bounds = space.Bounds{Lower: []float64{1, 0}, Upper: []float64{0, 1}}
	_, err = New(cfg, evaluator.Func(sphere))
	assert.ErrorIs(t, err, space.ErrInvalidBounds)

	cfg = testConfig(t, 2, 5, 10)
	cfg.Surrogate.Prior.Alpha = -1
	_, err = New(cfg, evaluator.Func(sphere))
	assert.ErrorIs(t, err, kernel.ErrInvalidHyperparameter)

	_, err = New(testConfig(t, 2, 5, 10), nil)
	assert.Error(t, err)
}

func TestStatusText(t *testing.T) {
	for s := Running; s <= Cancelled; s++ {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got Status
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
	var s Status
	assert.Error(t, s.UnmarshalText([]byte("exploded")))
	assert.Equal(t, "sampling", Sampling.String())
}
