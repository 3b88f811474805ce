// Package worker executes queued collector tasks: resolving one channel
// input per job and attempting run finalization after every terminal
// transition.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"ytcollector/internal/clock"
	"ytcollector/internal/finalize"
	"ytcollector/internal/logger"
	"ytcollector/internal/model"
	"ytcollector/internal/queue"
	"ytcollector/internal/resolver"
	"ytcollector/internal/state"
	"ytcollector/internal/yt"
)

// ttlExceeded is the terminal error recorded when the soft time limit
// expires mid-resolution.
const ttlExceeded = "TTL exceeded"

// ChannelResolver is the part of the resolver the worker needs.
type ChannelResolver interface {
	Resolve(ctx context.Context, input, tenantID string) (resolver.Result, error)
}

// Handler processes queue deliveries. Errors never propagate past it: every
// failure becomes a terminal Job state, and a finalizer attempt is always
// scheduled afterward.
type Handler struct {
	store         state.Store
	resolver      ChannelResolver
	finalizer     *finalize.Finalizer
	enqueuer      queue.Enqueuer
	clk           clock.Clock
	log           logger.Logger
	softTimeLimit time.Duration
}

// NewHandler builds a Handler. softTimeLimit bounds one job's processing;
// zero disables the bound.
func NewHandler(store state.Store, res ChannelResolver, fin *finalize.Finalizer, enq queue.Enqueuer, clk clock.Clock, log logger.Logger, softTimeLimit time.Duration) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		store:         store,
		resolver:      res,
		finalizer:     fin,
		enqueuer:      enq,
		clk:           clk,
		log:           log,
		softTimeLimit: softTimeLimit,
	}
}

// Mux returns the asynq routing table for this handler.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessChannelJob, h.HandleProcessChannelJob)
	mux.HandleFunc(queue.TypeFinalizeRun, h.HandleFinalizeRun)
	return mux
}

// HandleProcessChannelJob is the asynq entry point for job deliveries.
func (h *Handler) HandleProcessChannelJob(ctx context.Context, t *asynq.Task) error {
	var p queue.ProcessChannelJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Error("malformed process payload", logger.Err(err))
		return nil
	}
	h.ProcessChannelJob(ctx, p.JobID, p.RunID)
	return nil
}

// HandleFinalizeRun is the asynq entry point for finalizer attempts.
func (h *Handler) HandleFinalizeRun(ctx context.Context, t *asynq.Task) error {
	var p queue.FinalizeRunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.log.Error("malformed finalize payload", logger.Err(err))
		return nil
	}
	h.FinalizeRun(ctx, p.RunID)
	return nil
}

// ProcessChannelJob resolves one job end to end. Redeliveries of a job that
// already reached a terminal state are no-ops.
func (h *Handler) ProcessChannelJob(ctx context.Context, jobID, runID int64) {
	log := h.log.With(logger.F("job_id", jobID), logger.F("run_id", runID))

	job, err := h.store.GetJob(jobID)
	if err != nil {
		log.Error("job not found, aborting", logger.Err(err))
		return
	}
	run, err := h.store.GetRun(runID)
	if err != nil {
		log.Error("run not found, aborting", logger.Err(err))
		return
	}

	if job.Status.Terminal() {
		// At-least-once delivery: a second delivery after completion
		// must leave the job untouched.
		log.Info("job already terminal, skipping", logger.F("status", string(job.Status)))
		return
	}

	job.Status = model.JobProcessing
	job.Attempts++
	job.UpdatedAt = h.clk.Now()
	if err := h.store.UpdateJob(job); err != nil {
		log.Error("failed to mark job processing", logger.Err(err))
		return
	}

	// The finalizer attempt is unconditional once the job exists, even if
	// the terminal write below fails.
	defer h.scheduleFinalize(runID, log)

	resolveCtx := ctx
	if h.softTimeLimit > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(ctx, h.softTimeLimit)
		defer cancel()
	}

	result, err := h.resolver.Resolve(resolveCtx, job.InputChannel, run.OwnerID)
	switch {
	case err != nil && isCancellation(err):
		log.Warn("job exceeded its TTL")
		job.Status = model.JobFailed
		job.LastError = ttlExceeded
	case err != nil:
		log.Error("unexpected resolver error", logger.Err(err))
		job.Status = model.JobFailed
		job.LastError = err.Error()
	case result.Status == resolver.Resolved:
		job.Status = model.JobDone
		job.YouTubeChannelID = result.ChannelID
		job.LastError = ""
	case result.Status == resolver.NeedsSearch:
		job.Status = model.JobNeedsSearch
		job.LastError = "needs search fallback"
	default:
		job.Status = model.JobFailed
		job.LastError = result.Reason
	}

	job.UpdatedAt = h.clk.Now()
	if err := h.store.UpdateJob(job); err != nil {
		log.Error("failed to persist terminal job state", logger.Err(err))
		return
	}
	log.Info("job finished", logger.F("status", string(job.Status)))
}

// FinalizeRun runs one finalizer attempt; a not-ready run is normal.
func (h *Handler) FinalizeRun(ctx context.Context, runID int64) {
	finalized, err := h.finalizer.FinalizeRun(ctx, runID)
	if err != nil {
		h.log.Error("finalize attempt failed", logger.F("run_id", runID), logger.Err(err))
		return
	}
	if !finalized {
		h.log.Debug("run not ready to finalize", logger.F("run_id", runID))
	}
}

// scheduleFinalize enqueues a finalizer attempt detached from the task
// context, so a TTL expiry cannot also starve convergence.
func (h *Handler) scheduleFinalize(runID int64, log logger.Logger) {
	enqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.enqueuer.EnqueueFinalizeRun(enqCtx, runID); err != nil {
		log.Error("failed to schedule finalizer", logger.Err(err))
	}
}

func isCancellation(err error) bool {
	return yt.IsKind(err, yt.KindCancelled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
