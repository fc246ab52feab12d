package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	StatusQueued  JobStatus = "QUEUED"
	StatusRunning JobStatus = "RUNNING"
	StatusDone    JobStatus = "DONE"
	StatusError   JobStatus = "ERROR"
)

// Terminal reports whether the status is a fixed point
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one user submission of a workflow.
// Maps to: job table
type Job struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	WorkflowID uuid.UUID `db:"workflow_id" json:"workflow_id"`

	// Selected spec mode ("default" when the workflow has a single mode)
	Mode string `db:"mode" json:"mode"`

	// Echo of the user-provided text/param inputs (JSONB)
	Inputs map[string]any `db:"inputs" json:"inputs"`

	// Spec input key -> storage path (JSONB)
	Files map[string]string `db:"files" json:"files,omitempty"`

	// Compiled prompt-graph snapshot used for dispatch (JSONB).
	// Immutable once the job is terminal.
	PreparedWorkflow map[string]any `db:"prepared_workflow" json:"prepared_workflow,omitempty"`

	Status JobStatus `db:"status" json:"status"`

	// Normalized result artifacts, set when the job completes
	Result map[string]any `db:"result" json:"result,omitempty"`

	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// JobExecution is one attempt to run a job on a specific worker node.
// A job may have multiple executions; only the latest is authoritative.
// Maps to: job_execution table
type JobExecution struct {
	ID     uuid.UUID `db:"id" json:"id"`
	JobID  uuid.UUID `db:"job_id" json:"job_id"`
	NodeID uuid.UUID `db:"node_id" json:"node_id"`

	Status JobStatus `db:"status" json:"status"`

	// Identifier returned by the worker on submit
	PromptID *string `db:"prompt_id" json:"prompt_id,omitempty"`

	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
