package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies which processor handles a job.
type JobType string

const (
	JobQualifyProspects JobType = "qualify-prospects"
	JobAnalyzeDomain    JobType = "analyze-domain"
	JobGenerateProfile  JobType = "generate-profile"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusRetrying   JobStatus = "RETRYING"
	StatusFailed     JobStatus = "FAILED"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress reports how far a running job has come within one attempt.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// JobResult is the terminal outcome of a job.
type JobResult struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Job is a unit of work owned exclusively by the engine. The engine hands
// out copies; only its processing routine mutates the canonical record.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Type        JobType       `json:"type"`
	Payload     Payload       `json:"payload,omitempty"`
	Status      JobStatus     `json:"status"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	RetryDelay  time.Duration `json:"retry_delay_ms,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Progress    *Progress     `json:"progress,omitempty"`
	Result      *JobResult    `json:"result,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`

	// Seq breaks creation-time ties so dispatch order is stable.
	Seq int64 `json:"-"`
}

// Clone returns a copy safe to hand outside the engine.
func (j *Job) Clone() *Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
