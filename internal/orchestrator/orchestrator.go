// Package orchestrator accepts channel batches, fans them out as jobs, and
// reports run progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"ytcollector/internal/clock"
	"ytcollector/internal/finalize"
	"ytcollector/internal/logger"
	"ytcollector/internal/model"
	"ytcollector/internal/queue"
	"ytcollector/internal/state"
)

// ErrRunNotFound is returned by GetRunStatus for unknown run ids.
var ErrRunNotFound = errors.New("orchestrator: run not found")

// Orchestrator manages the Run lifecycle: creation, fan-out, and the status
// surface. Runs are mutated only by the finalizer after creation.
type Orchestrator struct {
	store     state.Store
	enqueuer  queue.Enqueuer
	finalizer *finalize.Finalizer
	clk       clock.Clock
	log       logger.Logger
}

// New returns an Orchestrator.
func New(store state.Store, enq queue.Enqueuer, fin *finalize.Finalizer, clk clock.Clock, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{store: store, enqueuer: enq, finalizer: fin, clk: clk, log: log}
}

// StartRunResult is what a batch submission returns.
type StartRunResult struct {
	RunID       int64 `json:"run_id"`
	JobsCreated int   `json:"jobs_created"`
}

// StartRun creates a Run plus one Job per unique normalized input and
// enqueues each job. A batch that normalizes to nothing finishes
// synchronously with an empty summary.
func (o *Orchestrator) StartRun(ctx context.Context, analysisID int64, ownerID string, inputs []string) (StartRunResult, error) {
	runID := o.store.NextRunID()
	run := model.Run{
		ID:         runID,
		AnalysisID: analysisID,
		OwnerID:    ownerID,
		Status:     model.RunRunning,
		CreatedAt:  o.clk.Now(),
	}
	if err := o.store.CreateRun(run); err != nil {
		return StartRunResult{}, err
	}
	o.log.Info("run started",
		logger.F("run_id", runID),
		logger.F("analysis_id", analysisID),
		logger.F("inputs", len(inputs)))

	jobsCreated := 0
	for _, input := range normalizeInputs(inputs) {
		jobID := o.store.NextJobID()
		now := o.clk.Now()
		job := model.Job{
			ID:           jobID,
			RunID:        runID,
			InputChannel: input,
			Status:       model.JobPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := o.store.CreateJob(job); err != nil {
			return StartRunResult{}, err
		}
		if err := o.enqueuer.EnqueueProcessChannelJob(ctx, jobID, runID); err != nil {
			return StartRunResult{}, fmt.Errorf("start run %d: %w", runID, err)
		}
		jobsCreated++
	}

	if jobsCreated == 0 {
		// Nothing to wait for; converge right away.
		if _, err := o.finalizer.FinalizeRun(ctx, runID); err != nil {
			return StartRunResult{}, err
		}
	}
	return StartRunResult{RunID: runID, JobsCreated: jobsCreated}, nil
}

// normalizeInputs trims, drops empties, and deduplicates preserving sorted
// order.
func normalizeInputs(inputs []string) []string {
	seen := make(map[string]struct{}, len(inputs))
	var unique []string
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if _, ok := seen[input]; ok {
			continue
		}
		seen[input] = struct{}{}
		unique = append(unique, input)
	}
	sort.Strings(unique)
	return unique
}

// FailedJob describes one failed job on the status surface.
type FailedJob struct {
	JobID int64  `json:"job_id"`
	Input string `json:"input"`
	Error string `json:"error"`
}

// RunStatus is the JSON status surface for one run.
type RunStatus struct {
	RunID        int64           `json:"run_id"`
	RunStatus    model.RunStatus `json:"run_status"`
	Progress     float64         `json:"progress"`
	TotalJobs    int             `json:"total_jobs"`
	StatusCounts map[string]int  `json:"status_counts"`
	FailedJobs   []FailedJob     `json:"failed_jobs"`
	Summary      *model.Summary  `json:"summary"`
}

// GetRunStatus reports progress for one run: per-status job counts, the
// ratio of terminal jobs to total (1.0 for an empty run), failed job
// details, and the summary once present.
func (o *Orchestrator) GetRunStatus(_ context.Context, runID int64) (*RunStatus, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	jobs, err := o.store.JobsForRun(runID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{
		string(model.JobPending):     0,
		string(model.JobProcessing):  0,
		string(model.JobDone):        0,
		string(model.JobFailed):      0,
		string(model.JobNeedsSearch): 0,
	}
	failed := make([]FailedJob, 0)
	terminal := 0
	for _, job := range jobs {
		counts[string(job.Status)]++
		if job.Status.Terminal() {
			terminal++
		}
		if job.Status == model.JobFailed {
			failed = append(failed, FailedJob{JobID: job.ID, Input: job.InputChannel, Error: job.LastError})
		}
	}

	progress := 1.0
	if len(jobs) > 0 {
		progress = float64(terminal) / float64(len(jobs))
	}

	return &RunStatus{
		RunID:        run.ID,
		RunStatus:    run.Status,
		Progress:     progress,
		TotalJobs:    len(jobs),
		StatusCounts: counts,
		FailedJobs:   failed,
		Summary:      run.Summary,
	}, nil
}
