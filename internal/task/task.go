// Package task implements the durable task queue, lifecycle state machine,
// and the approval gate that suspends and resumes checkpointed executions.
package task

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusBacklog   Status = "backlog"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// validStatuses enumerates all accepted status values.
var validStatuses = map[Status]bool{
	StatusBacklog:   true,
	StatusQueued:    true,
	StatusRunning:   true,
	StatusCompleted: true,
	StatusFailed:    true,
}

// IsValid returns true if the status is one of the recognized values.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PendingApproval records a suspended execution awaiting a human decision.
// A nil *PendingApproval on a Task means no gate is open; non-nil is only
// valid while the task is running.
type PendingApproval struct {
	// ThreadID addresses the checkpoint holding the suspended run.
	ThreadID string `json:"thread_id"`
	// Context describes the gated operation for the decision surface.
	Context map[string]string `json:"context,omitempty"`
	// RequestedAt is when the run suspended.
	RequestedAt time.Time `json:"requested_at"`
}

// Comment is one entry in a task's append-only comment log.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a unit of agent work tracked through the status lifecycle.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id,omitempty"`
	Status      Status `json:"status"`

	// PendingApproval is non-nil iff execution is suspended awaiting a
	// human decision. Invariant: non-nil implies Status == running.
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`

	// Comments is append-only; entries are never edited or removed.
	Comments []Comment `json:"comments,omitempty"`

	// Result and Error are mutually exclusive terminal outputs.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a task record.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("task: invalid status %q", t.Status)
	}
	if t.PendingApproval != nil && t.Status != StatusRunning {
		return fmt.Errorf("task: pending approval on non-running task (status %q)", t.Status)
	}
	if t.Result != "" && t.Error != "" {
		return fmt.Errorf("task: result and error are mutually exclusive")
	}
	return nil
}
