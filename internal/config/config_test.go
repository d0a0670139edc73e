package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/kernel"
	"github.com/cwbudde/bayesopt/internal/opt"
	"github.com/cwbudde/bayesopt/internal/space"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1.0, cfg.Kernel.LengthScale)
	assert.Equal(t, 1.0, cfg.Prior.Alpha)
	assert.Equal(t, 1.0, cfg.Prior.Beta)
	assert.Equal(t, 1000.0, cfg.Prior.Delta)
	assert.Equal(t, 1e-4, cfg.Noise)
	assert.Equal(t, 300, cfg.Iterations)
	assert.Equal(t, 30, cfg.InitialSamples)
	assert.Equal(t, "ei", cfg.Criterion)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
kernel:
  kind: matern3
  length_scale: 0.4
criterion: hedge(ei,lcb)
iterations: 40
convergence:
  enabled: true
  patience: 5
  threshold: 0.001
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "matern3", cfg.Kernel.Kind)
	assert.Equal(t, 0.4, cfg.Kernel.LengthScale)
	assert.Equal(t, 40, cfg.Iterations)
	assert.True(t, cfg.Convergence.Enabled)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30, cfg.InitialSamples)
	assert.Equal(t, 1000.0, cfg.Prior.Delta)
	assert.Equal(t, 1.0, cfg.CriterionParams.Kappa)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "run.json", `{"prior": {"alpha": 2, "beta": 3, "delta": 10}, "design": "uniform"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Prior.Alpha)
	assert.Equal(t, "uniform", cfg.Design)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"extension", "run.toml", "iterations = 3"},
		{"syntax", "run.json", "{"},
		{"negative alpha", "run.yaml", "prior: {alpha: -1, beta: 1, delta: 1}"},
		{"bad kernel", "run.yaml", "kernel: {kind: cubic, length_scale: 1}"},
		{"bad criterion", "run.yaml", "criterion: hedge(ei,"},
		{"zero initial", "run.yaml", "initial_samples: 0"},
		{"bad optimizer", "run.yaml", "optimizer: {kind: annealing}"},
		{"bad param", "run.yaml", "params: [{name: a, type: complex}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNegativeLengthScale(t *testing.T) {
	cfg := Default()
	cfg.Kernel.LengthScale = -1
	assert.ErrorIs(t, cfg.Validate(), kernel.ErrInvalidHyperparameter)
}

func TestLoopConfig(t *testing.T) {
	cfg := Default()
	cfg.Criterion = "lcba"
	cfg.Optimizer.Kind = "random"
	cfg.Optimizer.PolishEvals = 0

	lc, err := cfg.LoopConfig(space.NewBounds(3, -1, 1), 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), lc.Seed)
	assert.Equal(t, 3, lc.Bounds.Dim())
	assert.Equal(t, "lcba", lc.Criterion.Name())
	assert.IsType(t, &acquisition.AnnealedLCB{}, lc.Criterion)
	assert.IsType(t, &opt.RandomSearch{}, lc.Optimizer)
	assert.Equal(t, 1.0, lc.Surrogate.Kernel.LengthScale())

	cfg.Optimizer.Kind = "mayfly"
	cfg.Optimizer.PolishEvals = 100
	o, err := cfg.BuildOptimizer(space.UnitCube(2), 1)
	require.NoError(t, err)
	assert.IsType(t, &opt.Polish{}, o)
}

func TestDiscreteOptimizer(t *testing.T) {
	cfg := Default()
	cfg.Optimizer.Kind = "discrete"
	assert.Error(t, cfg.Validate(), "discrete search without candidates")

	cfg.Optimizer.Points = [][]float64{{-1, 0}, {0, 1}, {1, 1}}
	require.NoError(t, cfg.Validate())

	bounds := space.NewBounds(2, -1, 1)
	lc, err := cfg.LoopConfig(bounds, 0)
	require.NoError(t, err)
	d, ok := lc.Optimizer.(*opt.Discrete)
	require.True(t, ok, "discrete search must not be polished off the candidate set")
	assert.Equal(t, [][]float64{{0, 0.5}, {0.5, 1}, {1, 1}}, d.Points)

	cfg.Optimizer.Points = [][]float64{{0, 0, 0}}
	_, err = cfg.LoopConfig(bounds, 0)
	assert.ErrorContains(t, err, "coordinates")

	cfg.Optimizer.Points = [][]float64{{0, 2}}
	_, err = cfg.LoopConfig(bounds, 0)
	assert.ErrorContains(t, err, "outside")
}

func TestLoadDiscreteCandidates(t *testing.T) {
	path := writeFile(t, "disc.yaml", "optimizer:\n  kind: discrete\n  points:\n    - [0.1, 0.2]\n    - [0.9, 0.4]\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "discrete", cfg.Optimizer.Kind)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.9, 0.4}}, cfg.Optimizer.Points)
}

func TestSpace(t *testing.T) {
	cfg := Default()
	cfg.Params = []ParamSpec{
		{Name: "rate", Type: "float", Min: 0.001, Max: 0.1},
		{Name: "layers", Type: "int", Min: 1, Max: 4},
		{Name: "activation", Type: "categorical", Values: []string{"relu", "tanh"}},
	}
	require.NoError(t, cfg.Validate())

	s, err := cfg.Space()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dim())

	values, err := s.Decode([]float64{0, 1, 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.001, values["rate"])
	assert.Equal(t, 4, values["layers"])
	assert.Equal(t, "tanh", values["activation"])
}
