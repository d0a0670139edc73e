package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/bayesopt/internal/bo"
	"github.com/cwbudde/bayesopt/internal/evaluator"
	"github.com/cwbudde/bayesopt/internal/objective"
	"github.com/cwbudde/bayesopt/internal/store"
)

// runJob executes an optimisation job in the background. If runStore is not
// nil the finished run is persisted, and an FSStore also receives the
// evaluation trace.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	slog.Info("Starting job", "job_id", jobID, "objective", job.Objective, "dim", job.Dim)

	obj, err := objective.Lookup(job.Objective)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	loopCfg, err := job.Config.LoopConfig(obj.Bounds(job.Dim), 0)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var trace *store.TraceWriter
	if fs, ok := runStore.(*store.FSStore); ok {
		trace, err = store.NewTraceWriter(fs.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	loopCfg.Progress = jobProgress(jm, jobID, trace)

	loop, err := bo.New(loopCfg, evaluator.Func(obj.Evaluate))
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	start := time.Now()
	res, runErr := loop.Run(ctx)
	elapsed := time.Since(start)

	state := StateCompleted
	switch res.Status {
	case bo.Cancelled:
		state = StateCancelled
	case bo.EvaluationFailed, bo.ModelFailed:
		state = StateFailed
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Status = res.Status.String()
		j.Iterations = res.Iterations
		j.Evaluations = res.Evaluations
		j.EndTime = &endTime
		if res.HasIncumbent() {
			best := res.BestValue
			j.BestValue = &best
			j.BestPoint = res.BestPoint
		}
		if runErr != nil {
			j.Error = runErr.Error()
		}
	})
	if err != nil {
		slog.Warn("Failed to record job result", "job_id", jobID, "error", err)
	}

	final := ProgressEvent{
		JobID:       jobID,
		State:       state,
		Phase:       "done",
		Iteration:   res.Iterations,
		Evaluations: res.Evaluations,
		Status:      res.Status.String(),
		Timestamp:   time.Now(),
	}
	if res.HasIncumbent() {
		best := res.BestValue
		final.Best = &best
	}
	jm.broadcaster.Broadcast(final)

	if runStore != nil {
		rec := store.NewRunRecord(jobID, job.Objective, job.Dim, job.Config, res, runErr, job.StartTime)
		if err := runStore.Save(rec); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		}
	}

	switch state {
	case StateCancelled:
		slog.Info("Job cancelled", "job_id", jobID, "evaluations", res.Evaluations)
		return ctx.Err()
	case StateFailed:
		slog.Error("Job failed", "job_id", jobID, "status", res.Status, "error", runErr)
		return runErr
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"status", res.Status,
		"best", res.BestValue,
		"evaluations", res.Evaluations,
	)
	return nil
}

// jobProgress mirrors loop events into the job, its subscribers and the
// trace, if any.
func jobProgress(jm *JobManager, jobID string, trace *store.TraceWriter) func(bo.Event) {
	return func(e bo.Event) {
		best := e.Best
		err := jm.UpdateJob(jobID, func(j *Job) {
			j.BestValue = &best
			j.BestPoint = e.BestPoint
			j.Iterations = e.Iteration
			j.Evaluations = e.Evaluation
			j.Criterion = e.Criterion
		})
		if err != nil {
			slog.Debug("Failed to record job progress", "job_id", jobID, "error", err)
		}
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:       jobID,
			State:       StateRunning,
			Phase:       string(e.Phase),
			Iteration:   e.Iteration,
			Evaluations: e.Evaluation,
			Value:       &e.Value,
			Best:        &best,
			Criterion:   e.Criterion,
			Timestamp:   time.Now(),
		})
		if trace != nil {
			if err := trace.Write(store.EntryFromEvent(e)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Phase: "done", Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}
