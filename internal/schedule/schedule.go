// Package schedule implements recurring task triggers: interval and cron
// schedules that spawn queued tasks, with creation-time duplicate
// suppression of functionally identical definitions.
package schedule

import (
	"fmt"
	"time"
)

// Type discriminates how a schedule computes due-ness.
type Type string

const (
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

// Status is the lifecycle state of a schedule. Only active schedules
// participate in triggering and in duplicate detection.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// validStatuses enumerates all accepted status values.
var validStatuses = map[Status]bool{
	StatusActive:    true,
	StatusPaused:    true,
	StatusCompleted: true,
	StatusFailed:    true,
}

// IsValid returns true if the status is one of the recognized values.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// Schedule is a recurring trigger definition that spawns tasks.
type Schedule struct {
	ID         string `json:"id"`
	AgentID    string `json:"agent_id"`
	TaskPrompt string `json:"task_prompt"`
	Type       Type   `json:"schedule_type"`

	// IntervalMs is required for interval schedules; Cron for cron ones.
	IntervalMs int64  `json:"interval_ms,omitempty"`
	Cron       string `json:"cron,omitempty"`

	Status Status `json:"status"`

	// LastRunAt is zero until the first trigger.
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the schedule definition is structurally sound.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("schedule: id is required")
	}
	if s.AgentID == "" {
		return fmt.Errorf("schedule: agent_id is required")
	}
	if s.TaskPrompt == "" {
		return fmt.Errorf("schedule: task_prompt is required")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("schedule: invalid status %q", s.Status)
	}
	switch s.Type {
	case TypeInterval:
		if s.IntervalMs <= 0 {
			return fmt.Errorf("schedule: interval_ms must be positive")
		}
	case TypeCron:
		if s.Cron == "" {
			return fmt.Errorf("schedule: cron expression is required")
		}
	default:
		return fmt.Errorf("schedule: invalid type %q", s.Type)
	}
	return nil
}

// Interval returns the trigger period of an interval schedule.
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}
