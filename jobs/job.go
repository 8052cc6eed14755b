// Package jobs runs reply requests synchronously or in the background and
// keeps their records in a Store.
package jobs

import (
	"errors"
	"time"

	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrNotFound is returned for an unknown job ID.
	ErrNotFound = errors.New("job not found")

	// ErrFinished is returned when cancelling a job that already ended.
	ErrFinished = errors.New("job already finished")

	// ErrShuttingDown is returned by Submit and Run after Shutdown.
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// Request is the input of a reply job.
type Request struct {
	Email string         `json:"email"`
	Seed  map[string]any `json:"seed,omitempty"`
}

// Job is the record of one reply request.
type Job struct {
	ID      string  `json:"id"`
	Status  Status  `json:"status"`
	Request Request `json:"request"`

	// Result is set once the run has ended, successfully or not.
	Result *workflow.Result `json:"result,omitempty"`

	// Error explains a failure that happened outside the run, such as a
	// rejected request or a job cancelled before it started.
	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// clone returns a copy that shares no mutable fields the manager writes.
func (j *Job) clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
