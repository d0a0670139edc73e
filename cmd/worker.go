package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayesopt/internal/evaluator"
	"github.com/cwbudde/bayesopt/internal/objective"
)

var workerObjective string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve a built-in objective over stdin/stdout",
	Long: `Reads JSON-lines evaluation requests from stdin and writes responses to
stdout until the stop sentinel or end of input. Used by run --remote.`,
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerObjective, "objective", "", "Built-in objective to serve (required)")
	workerCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	obj, err := objective.Lookup(workerObjective)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Debug("Worker serving", "objective", obj.Name, "pid", os.Getpid())
	if err := evaluator.ServeStream(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), obj.Evaluate); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
