package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ytcollector/internal/model"
)

// Memory is a thread-safe in-memory Store. Records are stored by value, so
// readers always observe a consistent snapshot of each entity.
type Memory struct {
	mu        sync.RWMutex
	runs      map[int64]model.Run
	jobs      map[int64]model.Job
	jobsByRun map[int64][]int64

	runIDCounter atomic.Int64
	jobIDCounter atomic.Int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[int64]model.Run),
		jobs:      make(map[int64]model.Job),
		jobsByRun: make(map[int64][]int64),
	}
}

func (m *Memory) NextRunID() int64 { return m.runIDCounter.Add(1) }
func (m *Memory) NextJobID() int64 { return m.jobIDCounter.Add(1) }

func (m *Memory) CreateRun(run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("create run %d: %w", run.ID, ErrConflict)
	}
	m.runs[run.ID] = run
	m.jobsByRun[run.ID] = nil
	return nil
}

func (m *Memory) GetRun(runID int64) (model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return model.Run{}, fmt.Errorf("get run %d: %w", runID, ErrNotFound)
	}
	return run, nil
}

func (m *Memory) UpdateRun(run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return fmt.Errorf("update run %d: %w", run.ID, ErrNotFound)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) CreateJob(job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("create job %d: %w", job.ID, ErrConflict)
	}
	m.jobs[job.ID] = job
	if _, ok := m.jobsByRun[job.RunID]; ok {
		m.jobsByRun[job.RunID] = append(m.jobsByRun[job.RunID], job.ID)
	}
	return nil
}

func (m *Memory) GetJob(jobID int64) (model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return model.Job{}, fmt.Errorf("get job %d: %w", jobID, ErrNotFound)
	}
	return job, nil
}

func (m *Memory) UpdateJob(job model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("update job %d: %w", job.ID, ErrNotFound)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) JobsForRun(runID int64) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.jobsByRun[runID]
	if !ok {
		return nil, fmt.Errorf("jobs for run %d: %w", runID, ErrNotFound)
	}
	jobs := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := m.jobs[id]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (m *Memory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make(map[int64]model.Run)
	m.jobs = make(map[int64]model.Job)
	m.jobsByRun = make(map[int64][]int64)
	m.runIDCounter.Store(0)
	m.jobIDCounter.Store(0)
}
