package models

import "time"

// TaskStatus represents the lifecycle state of a task in the shared project store.
// The store is owned jointly with the task MCP server; the bridge only reads
// statuses and mirrors work-in-progress data back onto rows.
type TaskStatus string

// Task status constants.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusArchived   TaskStatus = "archived"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// IsTerminal returns true if the status marks the task as finished.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusArchived
}

// Task is the bridge's view of a task row. The MCP server owns the full
// schema; only the columns the bridge touches are modeled here.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	TaskType      string     `json:"task_type"`
	Status        TaskStatus `json:"status"`
	StoryID       string     `json:"story_id,omitempty"`
	EpicID        string     `json:"epic_id,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	WIP           string     `json:"wip,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ActionStatus is the enumerated outcome of one external action execution.
type ActionStatus string

// Action outcome constants. "warning" means the action ran and reported
// failure via its exit code; "error" is reserved for execution faults.
const (
	ActionSuccess     ActionStatus = "success"
	ActionWarning     ActionStatus = "warning"
	ActionSkipped     ActionStatus = "skipped"
	ActionBlocked     ActionStatus = "blocked"
	ActionRateLimited ActionStatus = "rate_limited"
	ActionTimeout     ActionStatus = "timeout"
	ActionError       ActionStatus = "error"
)

// ActionOutcome is the structured result of one action runner call.
type ActionOutcome struct {
	Action string       `json:"action"`
	Status ActionStatus `json:"status"`
	Output string       `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Ran reports whether the action actually executed (as opposed to being
// skipped, blocked, or rate limited before spawn).
func (o ActionOutcome) Ran() bool {
	return o.Status == ActionSuccess || o.Status == ActionWarning || o.Status == ActionTimeout
}
