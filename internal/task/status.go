package task

import (
	"fmt"
	"strings"

	"taskhive/server/internal/db"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// ParseStatus normalizes a raw status string into the closed enum. Raw
// strings from storage or external input never propagate past this boundary.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusTodo:
		return StatusTodo, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusArchived:
		return StatusArchived, nil
	}
	return "", &InvalidValueError{Field: "status", Value: raw}
}

func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.TrimSpace(raw)) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", &InvalidValueError{Field: "priority", Value: raw}
}

// TransitionTo applies a status change while maintaining the single-slot
// history. A change away from a non-empty current status records that status
// in previous_status; a no-op transition leaves previous_status untouched.
// All four statuses are mutually reachable. History is one slot, not a stack:
// two consecutive transitions discard the original state.
func TransitionTo(t *db.Task, next Status) {
	current := t.Status
	if current != "" && current != string(next) {
		t.PreviousStatus = current
	}
	t.Status = string(next)
}

// RestorePrevious moves the task back to the status held before the last
// transition, defaulting to todo when no history exists, and clears the slot
// to signal "no further history". Returns the restored status.
func RestorePrevious(t *db.Task) Status {
	prev := StatusTodo
	if t.PreviousStatus != "" {
		if parsed, err := ParseStatus(t.PreviousStatus); err == nil {
			prev = parsed
		}
	}
	TransitionTo(t, prev)
	t.PreviousStatus = ""
	return prev
}
