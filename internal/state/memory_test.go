package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollector/internal/model"
)

func TestMemoryRunLifecycle(t *testing.T) {
	store := NewMemory()

	runID := store.NextRunID()
	require.Equal(t, int64(1), runID)

	run := model.Run{ID: runID, AnalysisID: 7, OwnerID: "tenant-a", Status: model.RunRunning}
	require.NoError(t, store.CreateRun(run))

	got, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	run.Status = model.RunFinished
	require.NoError(t, store.UpdateRun(run))
	got, err = store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, got.Status)
}

func TestMemoryCreateConflict(t *testing.T) {
	store := NewMemory()
	run := model.Run{ID: 1}
	require.NoError(t, store.CreateRun(run))
	assert.ErrorIs(t, store.CreateRun(run), ErrConflict)

	job := model.Job{ID: 1, RunID: 1}
	require.NoError(t, store.CreateJob(job))
	assert.ErrorIs(t, store.CreateJob(job), ErrConflict)
}

func TestMemoryNotFound(t *testing.T) {
	store := NewMemory()

	_, err := store.GetRun(99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetJob(99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateRun(model.Run{ID: 99}), ErrNotFound)
	assert.ErrorIs(t, store.UpdateJob(model.Job{ID: 99}), ErrNotFound)
	_, err = store.JobsForRun(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJobsForRunConsistency(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.CreateRun(model.Run{ID: 1}))

	for i := 1; i <= 3; i++ {
		job := model.Job{ID: store.NextJobID(), RunID: 1, InputChannel: fmt.Sprintf("@ch%d", i)}
		require.NoError(t, store.CreateJob(job))
	}

	jobs, err := store.JobsForRun(1)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "@ch1", jobs[0].InputChannel)
	assert.Equal(t, "@ch3", jobs[2].InputChannel)
}

func TestMemoryMonotonicIDsUnderConcurrency(t *testing.T) {
	store := NewMemory()
	const n = 100

	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- store.NextJobID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMemoryClearAll(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.CreateRun(model.Run{ID: store.NextRunID()}))
	require.NoError(t, store.CreateJob(model.Job{ID: store.NextJobID(), RunID: 1}))

	store.ClearAll()

	_, err := store.GetRun(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(1), store.NextRunID())
	assert.Equal(t, int64(1), store.NextJobID())
}
