package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/bayesopt/internal/config"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobRequest is the body of POST /api/v1/jobs. A nil Config means the
// defaults.
type JobRequest struct {
	Objective string         `json:"objective"`
	Dim       int            `json:"dim"`
	Config    *config.Config `json:"config,omitempty"`
}

// Job represents an optimization job
type Job struct {
	ID          string        `json:"id"`
	State       JobState      `json:"state"`
	Objective   string        `json:"objective"`
	Dim         int           `json:"dim"`
	Config      config.Config `json:"config"`
	Status      string        `json:"status,omitempty"`
	BestValue   *float64      `json:"bestValue,omitempty"`
	BestPoint   []float64     `json:"bestPoint,omitempty"`
	Iterations  int           `json:"iterations"`
	Evaluations int           `json:"evaluations"`
	Criterion   string        `json:"criterion,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     *time.Time    `json:"endTime,omitempty"`
	Error       string        `json:"error,omitempty"`

	cancel context.CancelFunc
}

func (j *Job) snapshot() *Job {
	c := *j
	c.cancel = nil
	c.BestPoint = append([]float64(nil), j.BestPoint...)
	if j.BestValue != nil {
		v := *j.BestValue
		c.BestValue = &v
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for a resolved objective and config.
func (jm *JobManager) CreateJob(objective string, dim int, cfg config.Config) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Objective: objective,
		Dim:       dim,
		Config:    cfg,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob returns a copy of the job with the given ID.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// ListJobs returns copies of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartTime.Before(jobs[k].StartTime) })
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}

func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.UpdateJob(id, func(j *Job) { j.cancel = cancel })
}

// CancelJob requests cancellation of a pending or running job. Cancelling a
// finished job is an error.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	job, exists := jm.jobs[id]
	if !exists {
		jm.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		state := job.State
		jm.mu.Unlock()
		return fmt.Errorf("job %s already %s", id, state)
	}
	cancel := job.cancel
	jm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// CancelAll cancels every unfinished job.
func (jm *JobManager) CancelAll() {
	jm.mu.RLock()
	var cancels []context.CancelFunc
	for _, job := range jm.jobs {
		if !job.State.Terminal() && job.cancel != nil {
			cancels = append(cancels, job.cancel)
		}
	}
	jm.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
}
