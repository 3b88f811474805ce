package state

import (
	"errors"

	"ytcollector/internal/model"
)

var (
	// ErrNotFound is returned by lookups and updates on absent entities.
	ErrNotFound = errors.New("state: not found")
	// ErrConflict is returned when creating an entity whose id already exists.
	ErrConflict = errors.New("state: id conflict")
)

// Store holds Run and Job records. All operations are linearizable; callers
// guarantee that only one writer mutates a given entity at a time. The
// in-memory implementation is a placeholder for a durable backend and must
// be swappable without touching callers.
type Store interface {
	NextRunID() int64
	NextJobID() int64

	CreateRun(run model.Run) error
	GetRun(runID int64) (model.Run, error)
	UpdateRun(run model.Run) error

	CreateJob(job model.Job) error
	GetJob(jobID int64) (model.Job, error)
	UpdateJob(job model.Job) error
	JobsForRun(runID int64) ([]model.Job, error)

	// ClearAll drops every record and resets the id counters. Test hook.
	ClearAll()
}
