// Package config holds the run configuration shared by the CLI and the job
// server, and builds loop components from it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/bayesopt/internal/acquisition"
	"github.com/cwbudde/bayesopt/internal/bo"
	"github.com/cwbudde/bayesopt/internal/design"
	"github.com/cwbudde/bayesopt/internal/kernel"
	"github.com/cwbudde/bayesopt/internal/opt"
	"github.com/cwbudde/bayesopt/internal/space"
	"github.com/cwbudde/bayesopt/internal/surrogate"
)

// KernelConfig selects the correlation function.
type KernelConfig struct {
	Kind        string  `json:"kind" yaml:"kind"`
	LengthScale float64 `json:"length_scale" yaml:"length_scale"`
	// Exponent is used by the exponential kernel only.
	Exponent float64 `json:"exponent,omitempty" yaml:"exponent,omitempty"`
}

// OptimizerConfig selects the inner acquisition optimiser.
type OptimizerConfig struct {
	// Kind is "mayfly", "random" or "discrete".
	Kind       string `json:"kind" yaml:"kind"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	Population int    `json:"population" yaml:"population"`
	// Candidates is the sample count of the random search.
	Candidates int `json:"candidates" yaml:"candidates"`
	// PolishEvals bounds the Nelder-Mead refinement; 0 disables it. It is
	// ignored by the discrete search.
	PolishEvals int `json:"polish_evals" yaml:"polish_evals"`
	// Points is the candidate set of the discrete search, in objective
	// coordinates.
	Points [][]float64 `json:"points,omitempty" yaml:"points,omitempty"`
}

// ParamSpec declares one axis of a typed search space.
type ParamSpec struct {
	Name   string   `json:"name" yaml:"name"`
	Type   string   `json:"type" yaml:"type"` // float, int or categorical
	Min    float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max    float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Config is a complete run configuration.
type Config struct {
	Kernel    KernelConfig    `json:"kernel" yaml:"kernel"`
	Prior     surrogate.Prior `json:"prior" yaml:"prior"`
	Noise     float64         `json:"noise" yaml:"noise"`
	Process   string          `json:"process" yaml:"process"`
	Normalize bool            `json:"normalize" yaml:"normalize"`

	Criterion       string             `json:"criterion" yaml:"criterion"`
	CriterionParams acquisition.Params `json:"criterion_params" yaml:"criterion_params"`

	Design         string `json:"design" yaml:"design"`
	InitialSamples int    `json:"initial_samples" yaml:"initial_samples"`
	Iterations     int    `json:"iterations" yaml:"iterations"`

	RelearnEvery   int     `json:"relearn_every" yaml:"relearn_every"`
	LengthScaleMin float64 `json:"length_scale_min" yaml:"length_scale_min"`
	LengthScaleMax float64 `json:"length_scale_max" yaml:"length_scale_max"`

	Convergence bo.ConvergenceConfig `json:"convergence" yaml:"convergence"`
	Optimizer   OptimizerConfig      `json:"optimizer" yaml:"optimizer"`
	Seed        uint64               `json:"seed" yaml:"seed"`

	// Params optionally describes a typed search space over the unit cube.
	Params []ParamSpec `json:"params,omitempty" yaml:"params,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Kernel:          KernelConfig{Kind: "matern5", LengthScale: 1.0},
		Prior:           surrogate.DefaultPrior(),
		Noise:           1e-4,
		Process:         "gaussian",
		Normalize:       true,
		Criterion:       "ei",
		CriterionParams: acquisition.DefaultParams(),
		Design:          "lhs",
		InitialSamples:  30,
		Iterations:      300,
		RelearnEvery:    50,
		LengthScaleMin:  1e-2,
		LengthScaleMax:  10,
		Convergence:     bo.DefaultConvergenceConfig(),
		Optimizer: OptimizerConfig{
			Kind:        "mayfly",
			Iterations:  50,
			Population:  20,
			Candidates:  1000,
			PolishEvals: 200,
		},
		Seed: 1,
	}
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Load reads a YAML or JSON file on top of Default, so partial files are
// valid, and validates the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if ext == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and that every name resolves.
func (c *Config) Validate() error {
	if _, err := c.BuildKernel(); err != nil {
		return err
	}
	if err := c.Prior.Validate(); err != nil {
		return err
	}
	if !(c.Noise >= 0) {
		return &kernel.HyperparameterError{Name: "noise", Value: c.Noise, Want: ">= 0"}
	}
	if _, err := surrogate.ParseProcess(c.Process); err != nil {
		return err
	}
	if _, err := acquisition.Parse(c.Criterion, c.CriterionParams); err != nil {
		return err
	}
	if _, err := design.ParseKind(c.Design); err != nil {
		return err
	}
	if c.InitialSamples < 1 {
		return fmt.Errorf("initial_samples must be >= 1, got %d", c.InitialSamples)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.RelearnEvery < 0 {
		return fmt.Errorf("relearn_every must be >= 0, got %d", c.RelearnEvery)
	}
	if c.RelearnEvery > 0 && !(c.LengthScaleMin > 0 && c.LengthScaleMax > c.LengthScaleMin) {
		return fmt.Errorf("length scale range [%g, %g] is invalid", c.LengthScaleMin, c.LengthScaleMax)
	}
	if c.Convergence.Enabled && c.Convergence.Patience < 1 {
		return fmt.Errorf("convergence.patience must be >= 1, got %d", c.Convergence.Patience)
	}
	switch c.Optimizer.Kind {
	case "mayfly", "random":
	case "discrete":
		if len(c.Optimizer.Points) == 0 {
			return errors.New("discrete optimizer needs at least one candidate point")
		}
	default:
		return fmt.Errorf("unknown optimizer %q (want mayfly, random or discrete)", c.Optimizer.Kind)
	}
	if len(c.Params) > 0 {
		if _, err := c.Space(); err != nil {
			return err
		}
	}
	return nil
}

// BuildKernel constructs the configured kernel.
func (c *Config) BuildKernel() (*kernel.Kernel, error) {
	kind, err := kernel.ParseKind(c.Kernel.Kind)
	if err != nil {
		return nil, err
	}
	return kernel.New(kernel.Config{Kind: kind, LengthScale: c.Kernel.LengthScale, Exponent: c.Kernel.Exponent})
}

// SurrogateOptions returns the surrogate model options.
func (c *Config) SurrogateOptions() (surrogate.Options, error) {
	k, err := c.BuildKernel()
	if err != nil {
		return surrogate.Options{}, err
	}
	process, err := surrogate.ParseProcess(c.Process)
	if err != nil {
		return surrogate.Options{}, err
	}
	return surrogate.Options{
		Kernel:    k,
		Prior:     c.Prior,
		Noise:     c.Noise,
		Normalize: c.Normalize,
		Process:   process,
	}, nil
}

// BuildCriterion parses the criterion for a dim-dimensional search. Each
// call returns fresh criterion state.
func (c *Config) BuildCriterion(dim int, seed uint64) (acquisition.Criterion, error) {
	params := c.CriterionParams
	params.Dim = dim
	params.Seed = seed
	return acquisition.Parse(c.Criterion, params)
}

// BuildOptimizer returns the inner optimiser. The loop searches the unit
// cube, so discrete candidates are mapped through bounds.
func (c *Config) BuildOptimizer(bounds space.Bounds, seed uint64) (opt.Optimizer, error) {
	if c.Optimizer.Kind == "discrete" {
		points := make([][]float64, len(c.Optimizer.Points))
		for i, p := range c.Optimizer.Points {
			if len(p) != bounds.Dim() {
				return nil, fmt.Errorf("candidate %d has %d coordinates, want %d", i, len(p), bounds.Dim())
			}
			if !bounds.Contains(p) {
				return nil, fmt.Errorf("candidate %d %v lies outside the bounds", i, p)
			}
			points[i] = bounds.ToUnit(p)
		}
		return &opt.Discrete{Points: points}, nil
	}

	var global opt.Optimizer
	switch c.Optimizer.Kind {
	case "random":
		global = opt.NewRandomSearch(c.Optimizer.Candidates, seed)
	default:
		global = opt.NewMayfly(c.Optimizer.Iterations, c.Optimizer.Population, int64(seed))
	}
	if c.Optimizer.PolishEvals <= 0 {
		return global, nil
	}
	return &opt.Polish{Global: global, MaxEvals: c.Optimizer.PolishEvals}, nil
}

// LoopConfig assembles a bo.Config over bounds. The seed offset lets
// multi-start runs derive independent streams from one configuration.
func (c *Config) LoopConfig(bounds space.Bounds, seedOffset uint64) (bo.Config, error) {
	seed := c.Seed + seedOffset
	opts, err := c.SurrogateOptions()
	if err != nil {
		return bo.Config{}, err
	}
	crit, err := c.BuildCriterion(bounds.Dim(), seed)
	if err != nil {
		return bo.Config{}, err
	}
	kind, err := design.ParseKind(c.Design)
	if err != nil {
		return bo.Config{}, err
	}
	optimizer, err := c.BuildOptimizer(bounds, seed)
	if err != nil {
		return bo.Config{}, err
	}
	return bo.Config{
		Bounds:         bounds,
		Surrogate:      opts,
		Criterion:      crit,
		Optimizer:      optimizer,
		Design:         kind,
		InitialSamples: c.InitialSamples,
		Iterations:     c.Iterations,
		RelearnEvery:   c.RelearnEvery,
		LengthScaleMin: c.LengthScaleMin,
		LengthScaleMax: c.LengthScaleMax,
		Convergence:    c.Convergence,
		Seed:           seed,
	}, nil
}

// Space builds the typed search space declared by Params.
func (c *Config) Space() (space.Space, error) {
	var s space.Space
	for _, p := range c.Params {
		switch p.Type {
		case "float", "":
			s.Params = append(s.Params, space.NewRange(p.Name, p.Min, p.Max))
		case "int":
			s.Params = append(s.Params, space.NewRange(p.Name, int(p.Min), int(p.Max)))
		case "categorical":
			s.Params = append(s.Params, space.Categorical{Name: p.Name, Values: p.Values})
		default:
			return space.Space{}, fmt.Errorf("param %q: unknown type %q", p.Name, p.Type)
		}
	}
	if err := s.Validate(); err != nil {
		return space.Space{}, err
	}
	return s, nil
}
