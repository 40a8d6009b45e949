package models

import (
	"time"

	"github.com/google/uuid"
)

// Job types.
const (
	JobTypeRefresh   = "price_refresh"
	JobTypeDiscovery = "product_discovery"
)

// Job run statuses.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobRun is the bookkeeping row for one execution of a background job.
// Per-item failures bump the Failed counter and never abort the run; Error is
// only set when the run itself could not proceed.
type JobRun struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// NewJobRun creates a pending run for the given job type.
func NewJobRun(jobType string) *JobRun {
	return &JobRun{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}
