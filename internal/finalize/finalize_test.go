package finalize

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollector/internal/clock"
	"ytcollector/internal/lock"
	"ytcollector/internal/model"
	"ytcollector/internal/state"
)

func newTestFinalizer(t *testing.T) (*Finalizer, *state.Memory, *clock.Manual) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := state.NewMemory()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	return New(store, lock.New(rdb), clk, nil), store, clk
}

func seedRun(t *testing.T, store *state.Memory, clk *clock.Manual, statuses ...model.JobStatus) int64 {
	t.Helper()
	runID := store.NextRunID()
	require.NoError(t, store.CreateRun(model.Run{
		ID:        runID,
		OwnerID:   "tenant-a",
		Status:    model.RunRunning,
		CreatedAt: clk.Now(),
	}))
	for i, status := range statuses {
		require.NoError(t, store.CreateJob(model.Job{
			ID:           store.NextJobID(),
			RunID:        runID,
			InputChannel: "@input" + string(rune('a'+i)),
			Status:       status,
		}))
	}
	return runID
}

func TestFinalizeRunComputesSummary(t *testing.T) {
	fin, store, clk := newTestFinalizer(t)
	runID := seedRun(t, store, clk, model.JobDone, model.JobFailed, model.JobNeedsSearch)

	clk.Advance(2500 * time.Millisecond)
	finalized, err := fin.FinalizeRun(context.Background(), runID)
	require.NoError(t, err)
	require.True(t, finalized)

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, model.Summary{
		Total:           3,
		Done:            1,
		Failed:          1,
		NeedsSearch:     1,
		DurationSeconds: 2.5,
	}, *run.Summary)
	assert.False(t, run.FinishedAt.Before(run.CreatedAt))
}

func TestFinalizeRunIsIdempotent(t *testing.T) {
	fin, store, clk := newTestFinalizer(t)
	runID := seedRun(t, store, clk, model.JobDone, model.JobFailed)

	first, err := fin.FinalizeRun(context.Background(), runID)
	require.NoError(t, err)
	require.True(t, first)

	runAfterFirst, err := store.GetRun(runID)
	require.NoError(t, err)

	second, err := fin.FinalizeRun(context.Background(), runID)
	require.NoError(t, err)
	assert.False(t, second, "only one call performs the transition")

	runAfterSecond, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, runAfterFirst, runAfterSecond, "a second call must not mutate the run")
}

func TestFinalizeRunNotReadyWhileJobsPending(t *testing.T) {
	fin, store, clk := newTestFinalizer(t)

	for _, status := range []model.JobStatus{model.JobPending, model.JobProcessing} {
		runID := seedRun(t, store, clk, model.JobDone, status)
		finalized, err := fin.FinalizeRun(context.Background(), runID)
		require.NoError(t, err)
		assert.False(t, finalized, "status %s must block finalization", status)

		run, err := store.GetRun(runID)
		require.NoError(t, err)
		assert.Equal(t, model.RunRunning, run.Status)
	}
}

func TestFinalizeRunMissingRun(t *testing.T) {
	fin, _, _ := newTestFinalizer(t)
	finalized, err := fin.FinalizeRun(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, finalized)
}

func TestFinalizeEmptyRun(t *testing.T) {
	fin, store, clk := newTestFinalizer(t)
	runID := seedRun(t, store, clk)

	finalized, err := fin.FinalizeRun(context.Background(), runID)
	require.NoError(t, err)
	require.True(t, finalized)

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 0, run.Summary.Total)
	assert.Equal(t, run.Summary.Total, run.Summary.Done+run.Summary.Failed+run.Summary.NeedsSearch)
}

func TestFinalizeSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := state.NewMemory()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	locker := lock.New(rdb)
	fin := New(store, locker, clk, nil)
	runID := seedRun(t, store, clk, model.JobDone)

	_, held, err := locker.Acquire(context.Background(), "finalize_run_lock:1", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	finalized, err := fin.FinalizeRun(context.Background(), runID)
	require.NoError(t, err)
	assert.False(t, finalized, "a held lock must make the attempt a no-op")

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)
}
