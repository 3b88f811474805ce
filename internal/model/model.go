package model

import "time"

// JobStatus is the lifecycle state of a single channel input.
type JobStatus string

const (
	JobPending     JobStatus = "PENDING"
	JobProcessing  JobStatus = "PROCESSING"
	JobDone        JobStatus = "DONE"
	JobFailed      JobStatus = "FAILED"
	JobNeedsSearch JobStatus = "NEEDS_SEARCH"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobDone, JobFailed, JobNeedsSearch:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a batch.
type RunStatus string

const (
	RunPending  RunStatus = "PENDING"
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
)

// Summary is computed exactly once, when a Run transitions to FINISHED.
type Summary struct {
	Total           int     `json:"total"`
	Done            int     `json:"done"`
	Failed          int     `json:"failed"`
	NeedsSearch     int     `json:"needs_search"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Run is one submitted batch of channel inputs, owned by a tenant.
type Run struct {
	ID         int64     `json:"id"`
	AnalysisID int64     `json:"analysis_id"`
	OwnerID    string    `json:"owner_id"`
	Status     RunStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// Job is one input within a Run, processed independently.
type Job struct {
	ID               int64     `json:"id"`
	RunID            int64     `json:"run_id"`
	InputChannel     string    `json:"input_channel"`
	YouTubeChannelID string    `json:"youtube_channel_id,omitempty"`
	Status           JobStatus `json:"status"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
