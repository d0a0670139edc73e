package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/bayesopt/internal/bo"
	"github.com/cwbudde/bayesopt/internal/config"
	"github.com/cwbudde/bayesopt/internal/evaluator"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/space"
	"github.com/cwbudde/bayesopt/internal/store"
)

var (
	configPath    string
	objectiveName string
	dim           int
	iterations    int
	initSamples   int
	criterion     string
	optimizerKind string
	seed          uint64
	remote        bool
	workerCommand string
	multiStart    int
	runDataDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimisation",
	Long: `Minimises a built-in objective, in-process or in a worker subprocess,
or an external program speaking the JSON-lines evaluator protocol.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML or JSON configuration file")
	runCmd.Flags().StringVar(&objectiveName, "objective", "sphere", "Built-in objective ("+strings.Join(objective.Names(), ", ")+")")
	runCmd.Flags().IntVar(&dim, "dim", 2, "Dimensionality for objectives without a fixed one")
	runCmd.Flags().IntVar(&iterations, "iterations", 0, "Sequential iterations (overrides config)")
	runCmd.Flags().IntVar(&initSamples, "init", 0, "Initial design size (overrides config)")
	runCmd.Flags().StringVar(&criterion, "criterion", "", "Acquisition criterion (overrides config)")
	runCmd.Flags().StringVar(&optimizerKind, "optimizer", "", "Inner optimiser: mayfly, random or discrete (overrides config; discrete needs optimizer.points)")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (overrides config)")
	runCmd.Flags().BoolVar(&remote, "remote", false, "Evaluate the built-in objective in a worker subprocess")
	runCmd.Flags().StringVar(&workerCommand, "command", "", "External evaluator command; uses the config params or the unit cube of --dim")
	runCmd.Flags().IntVar(&multiStart, "multistart", 1, "Number of independent concurrent starts")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Persist the run and its trace under this directory")

	rootCmd.AddCommand(runCmd)
}

// loadRunConfig reads the configuration file, if any, and applies the flags
// the user set explicitly.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("init") {
		cfg.InitialSamples = initSamples
	}
	if flags.Changed("criterion") {
		cfg.Criterion = criterion
	}
	if flags.Changed("optimizer") {
		cfg.Optimizer.Kind = optimizerKind
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// target is what a run minimises.
type target struct {
	name   string
	dim    int
	bounds space.Bounds
	// params decodes the best point when the config declares a typed space.
	params *space.Space
	// open returns a fresh evaluator and an optional closer.
	open func(ctx context.Context) (evaluator.Evaluator, io.Closer, error)
}

func resolveTarget(cfg *config.Config) (*target, error) {
	if workerCommand != "" {
		fields := strings.Fields(workerCommand)
		t := &target{
			name: fields[0],
			open: func(ctx context.Context) (evaluator.Evaluator, io.Closer, error) {
				p, err := evaluator.StartProcess(ctx, fields[0], fields[1:]...)
				if err != nil {
					return nil, nil, err
				}
				return p, p, nil
			},
		}
		if len(cfg.Params) > 0 {
			sp, err := cfg.Space()
			if err != nil {
				return nil, err
			}
			t.params = &sp
			t.dim = sp.Dim()
			t.bounds = sp.Bounds()
		} else {
			if dim < 1 {
				return nil, fmt.Errorf("--dim must be >= 1, got %d", dim)
			}
			t.dim = dim
			t.bounds = space.UnitCube(dim)
		}
		return t, nil
	}

	obj, err := objective.Lookup(objectiveName)
	if err != nil {
		return nil, err
	}
	d, err := obj.ResolveDim(dim)
	if err != nil {
		return nil, err
	}
	t := &target{name: obj.Name, dim: d, bounds: obj.Bounds(d)}
	if remote {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		t.open = func(ctx context.Context) (evaluator.Evaluator, io.Closer, error) {
			p, err := evaluator.StartProcess(ctx, exe, "worker", "--objective", obj.Name, "--log-level", logLevel)
			if err != nil {
				return nil, nil, err
			}
			return p, p, nil
		}
	} else {
		t.open = func(context.Context) (evaluator.Evaluator, io.Closer, error) {
			return evaluator.Func(obj.Evaluate), nil, nil
		}
	}
	return t, nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	t, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	if multiStart < 1 {
		return fmt.Errorf("--multistart must be >= 1, got %d", multiStart)
	}

	var runStore *store.FSStore
	var trace *store.TraceWriter
	id := uuid.New().String()
	if runDataDir != "" {
		runStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		if multiStart == 1 {
			trace, err = store.NewTraceWriter(runDataDir, id, false)
			if err != nil {
				return fmt.Errorf("failed to create trace: %w", err)
			}
			defer trace.Close()
		}
	}

	slog.Info("Starting optimisation",
		"target", t.name,
		"dim", t.dim,
		"criterion", cfg.Criterion,
		"initial", cfg.InitialSamples,
		"iterations", cfg.Iterations,
		"starts", multiStart,
	)

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("Failed to close evaluator", "error", err)
			}
		}
	}()

	build := func(start int) (*bo.Loop, error) {
		lc, err := cfg.LoopConfig(t.bounds, uint64(start))
		if err != nil {
			return nil, err
		}
		if trace != nil {
			lc.Progress = func(e bo.Event) {
				if err := trace.Write(store.EntryFromEvent(e)); err != nil {
					slog.Warn("Failed to write trace entry", "error", err)
				}
			}
		}
		eval, closer, err := t.open(ctx)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		return bo.New(lc, eval)
	}

	started := time.Now()
	var res *bo.Result
	var runErr error
	if multiStart == 1 {
		loop, err := build(0)
		if err != nil {
			return err
		}
		res, runErr = loop.Run(ctx)
	} else {
		var starts []bo.StartResult
		res, starts, runErr = bo.MultiStart(ctx, multiStart, build)
		for i, s := range starts {
			if s.Result != nil {
				slog.Info("Start finished", "start", i, "status", s.Result.Status, "best", s.Result.BestValue)
			}
		}
		if res == nil {
			return runErr
		}
	}

	if runStore != nil {
		rec := store.NewRunRecord(id, t.name, t.dim, *cfg, res, runErr, started)
		if err := runStore.Save(rec); err != nil {
			slog.Error("Failed to save run", "id", id, "error", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s\n", id)
		}
	}

	if err := printResult(cmd.OutOrStdout(), res, t.params, time.Since(started)); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func printResult(w io.Writer, res *bo.Result, params *space.Space, elapsed time.Duration) error {
	fmt.Fprintf(w, "Status:       %s\n", res.Status)
	fmt.Fprintf(w, "Evaluations:  %d (%d sequential)\n", res.Evaluations, res.Iterations)
	fmt.Fprintf(w, "Length scale: %.4g\n", res.LengthScale)
	fmt.Fprintf(w, "Elapsed:      %s\n", elapsed.Round(time.Millisecond))
	if !res.HasIncumbent() {
		fmt.Fprintln(w, "No successful evaluation.")
		return nil
	}
	fmt.Fprintf(w, "Best value:   %.6g\n", res.BestValue)
	fmt.Fprintf(w, "Best point:   %s\n", formatPoint(res.BestPoint))

	if params == nil {
		return nil
	}
	decoded, err := params.Decode(res.BestPoint)
	if err != nil {
		return fmt.Errorf("failed to decode best point: %w", err)
	}
	names := make([]string, 0, len(decoded))
	for name := range decoded {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Parameters:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %v\n", name, decoded[name])
	}
	return nil
}

func formatPoint(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
