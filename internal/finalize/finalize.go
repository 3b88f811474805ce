// Package finalize converges a Run to FINISHED once every one of its Jobs
// has reached a terminal state.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ytcollector/internal/clock"
	"ytcollector/internal/lock"
	"ytcollector/internal/logger"
	"ytcollector/internal/model"
	"ytcollector/internal/state"
)

// Finalizer computes the terminal summary for a Run. A named advisory lock
// keeps near-simultaneous worker completions from finalizing twice.
type Finalizer struct {
	store   state.Store
	locker  *lock.Locker
	clk     clock.Clock
	log     logger.Logger
	lockTTL time.Duration
}

// New returns a Finalizer. locker may be nil, in which case finalization
// runs unguarded (single-process tests).
func New(store state.Store, locker *lock.Locker, clk clock.Clock, log logger.Logger) *Finalizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Finalizer{
		store:   store,
		locker:  locker,
		clk:     clk,
		log:     log,
		lockTTL: lock.DefaultTTL,
	}
}

func lockName(runID int64) string { return fmt.Sprintf("finalize_run_lock:%d", runID) }

// FinalizeRun transitions the Run to FINISHED if all its Jobs are terminal,
// setting finished_at and the summary atomically with the transition. It
// returns true only for the call that performed the transition. Once
// FINISHED, neither the Run nor its Jobs are ever mutated again.
func (f *Finalizer) FinalizeRun(ctx context.Context, runID int64) (bool, error) {
	if f.locker != nil {
		name := lockName(runID)
		token, ok, err := f.locker.Acquire(ctx, name, f.lockTTL)
		if err != nil {
			return false, err
		}
		if !ok {
			// Someone else is finalizing; their attempt covers ours.
			return false, nil
		}
		defer func() {
			if err := f.locker.Release(ctx, name, token); err != nil {
				f.log.Warn("finalizer lock release failed", logger.F("run_id", runID), logger.Err(err))
			}
		}()
	}
	return f.finalizeLocked(runID)
}

func (f *Finalizer) finalizeLocked(runID int64) (bool, error) {
	run, err := f.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if run.Status == model.RunFinished {
		return false, nil
	}

	jobs, err := f.store.JobsForRun(runID)
	if err != nil {
		return false, err
	}

	summary := model.Summary{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Status {
		case model.JobDone:
			summary.Done++
		case model.JobFailed:
			summary.Failed++
		case model.JobNeedsSearch:
			summary.NeedsSearch++
		default:
			// A job is still PENDING or PROCESSING; not ready yet.
			return false, nil
		}
	}

	run.Status = model.RunFinished
	run.FinishedAt = f.clk.Now()
	summary.DurationSeconds = round2(run.FinishedAt.Sub(run.CreatedAt).Seconds())
	run.Summary = &summary

	if err := f.store.UpdateRun(run); err != nil {
		return false, err
	}
	f.log.Info("run finalized",
		logger.F("run_id", runID),
		logger.F("total", summary.Total),
		logger.F("done", summary.Done),
		logger.F("failed", summary.Failed),
		logger.F("needs_search", summary.NeedsSearch),
		logger.F("duration_seconds", summary.DurationSeconds))
	return true, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
