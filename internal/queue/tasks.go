// Package queue defines the work-dispatch boundary: task types, payloads,
// and Enqueuer implementations over the asynq broker and an in-process
// worker pool. Delivery is at-least-once; handlers must tolerate duplicate
// deliveries of terminal jobs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names registered with the broker.
const (
	TypeProcessChannelJob = "collector:process_channel_job"
	TypeFinalizeRun       = "collector:finalize_run"
)

// ProcessChannelJobPayload identifies one job to resolve.
type ProcessChannelJobPayload struct {
	JobID int64 `json:"job_id"`
	RunID int64 `json:"run_id"`
}

// FinalizeRunPayload identifies one run to try to finalize.
type FinalizeRunPayload struct {
	RunID int64 `json:"run_id"`
}

// Enqueuer schedules collector work. The orchestrator fans jobs out through
// it and every worker schedules a finalizer attempt through it.
type Enqueuer interface {
	EnqueueProcessChannelJob(ctx context.Context, jobID, runID int64) error
	EnqueueFinalizeRun(ctx context.Context, runID int64) error
}

// NewProcessChannelJobTask builds the asynq task for one job.
func NewProcessChannelJobTask(jobID, runID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessChannelJobPayload{JobID: jobID, RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("queue: marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessChannelJob, payload), nil
}

// NewFinalizeRunTask builds the asynq task for one finalizer attempt.
func NewFinalizeRunTask(runID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(FinalizeRunPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("queue: marshal finalize payload: %w", err)
	}
	return asynq.NewTask(TypeFinalizeRun, payload), nil
}
