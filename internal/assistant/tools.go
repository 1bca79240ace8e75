package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"taskhive/server/internal/db"
	"taskhive/server/internal/provider"
	"taskhive/server/internal/task"
)

const (
	toolCreateTask = "create_task"
	toolUpdateTask = "update_task"
	toolDeleteTask = "delete_task"
)

// ToolDefs is the fixed function schema offered to the completion endpoint.
func ToolDefs() []provider.ToolDef {
	statusEnum := []string{
		string(task.StatusTodo), string(task.StatusInProgress),
		string(task.StatusCompleted), string(task.StatusArchived),
	}
	priorityEnum := []string{
		string(task.PriorityLow), string(task.PriorityMedium), string(task.PriorityHigh),
	}
	return []provider.ToolDef{
		{
			Name:        toolCreateTask,
			Description: "Create a new task for the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string", "description": "Task title."},
					"description": map[string]any{"type": "string"},
					"priority":    map[string]any{"type": "string", "enum": priorityEnum},
					"due_date":    map[string]any{"type": "string", "description": "Due date in YYYY-MM-DD format."},
					"category_id": map[string]any{"type": "string"},
					"status":      map[string]any{"type": "string", "enum": statusEnum},
				},
				"required": []string{"title"},
			},
		},
		{
			Name: toolUpdateTask,
			Description: "Update an existing task found by its exact title. " +
				"If several tasks share the title, the call fails with a list of candidates; " +
				"retry with task_status set to the current status of the intended task.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_title": map[string]any{"type": "string", "description": "Exact title of the task to update."},
					"task_status": map[string]any{
						"type": "string", "enum": statusEnum,
						"description": "Current status of the intended task; only needed to disambiguate duplicate titles.",
					},
					"title":       map[string]any{"type": "string", "description": "New title."},
					"description": map[string]any{"type": "string"},
					"priority":    map[string]any{"type": "string", "enum": priorityEnum},
					"due_date":    map[string]any{"type": "string"},
					"status":      map[string]any{"type": "string", "enum": statusEnum},
				},
				"required": []string{"task_title"},
			},
		},
		{
			Name: toolDeleteTask,
			Description: "Permanently delete a task found by its exact title. " +
				"Use task_status to disambiguate duplicate titles.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task_title":  map[string]any{"type": "string"},
					"task_status": map[string]any{"type": "string", "enum": statusEnum},
				},
				"required": []string{"task_title"},
			},
		},
	}
}

type TaskSummary struct {
	Title       string `json:"title"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Category    string `json:"category,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Description string `json:"description,omitempty"`
}

type ToolResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Task    *TaskSummary  `json:"task,omitempty"`
	Matches []TaskSummary `json:"matches,omitempty"`
}

// Executor dispatches reassembled tool calls against the task service. Every
// failure is returned as a structured result; nothing escapes this boundary.
type Executor struct {
	tasks *task.Service
}

func NewExecutor(tasks *task.Service) *Executor {
	return &Executor{tasks: tasks}
}

func (e *Executor) Execute(userID string, call provider.ToolCall) ToolResult {
	switch call.Function.Name {
	case toolCreateTask:
		return e.createTask(userID, call.RawArguments())
	case toolUpdateTask:
		return e.updateTask(userID, call.RawArguments())
	case toolDeleteTask:
		return e.deleteTask(userID, call.RawArguments())
	default:
		return ToolResult{Success: false, Message: fmt.Sprintf("unknown tool %q", call.Function.Name)}
	}
}

type createTaskArgs struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	CategoryID  *string `json:"category_id"`
	Status      *string `json:"status"`
}

func (e *Executor) createTask(userID string, raw json.RawMessage) ToolResult {
	var args createTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("create_task arguments are not valid JSON")
	}
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return failure("create_task requires a title")
	}
	params := task.CreateParams{Title: title}
	if args.Description != nil {
		params.Description = *args.Description
	}
	if args.Priority != nil {
		p, err := task.ParsePriority(*args.Priority)
		if err != nil {
			return failure(err.Error())
		}
		params.Priority = p
	}
	if args.Status != nil {
		st, err := task.ParseStatus(*args.Status)
		if err != nil {
			return failure(err.Error())
		}
		params.Status = st
	}
	if args.DueDate != nil && *args.DueDate != "" {
		if _, err := time.Parse("2006-01-02", *args.DueDate); err != nil {
			return failure(fmt.Sprintf("invalid due_date %q, expected YYYY-MM-DD", *args.DueDate))
		}
		params.DueDate = *args.DueDate
	}
	if args.CategoryID != nil {
		params.CategoryID = *args.CategoryID
	}
	row, err := e.tasks.Create(userID, params)
	if err != nil {
		return failure(fmt.Sprintf("could not create task: %v", err))
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Created task %q", row.Title),
		Task:    summarize(row),
	}
}

type updateTaskArgs struct {
	TaskTitle   string  `json:"task_title"`
	TaskStatus  *string `json:"task_status"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	Status      *string `json:"status"`
}

func (e *Executor) updateTask(userID string, raw json.RawMessage) ToolResult {
	var args updateTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("update_task arguments are not valid JSON")
	}
	target, res := e.resolveByTitle(userID, args.TaskTitle, args.TaskStatus)
	if target == nil {
		return res
	}
	params := task.UpdateParams{
		Title:       args.Title,
		Description: args.Description,
		DueDate:     args.DueDate,
	}
	if args.Priority != nil {
		p, err := task.ParsePriority(*args.Priority)
		if err != nil {
			return failure(err.Error())
		}
		params.Priority = &p
	}
	if args.Status != nil {
		st, err := task.ParseStatus(*args.Status)
		if err != nil {
			return failure(err.Error())
		}
		params.Status = &st
	}
	if args.DueDate != nil && *args.DueDate != "" {
		if _, err := time.Parse("2006-01-02", *args.DueDate); err != nil {
			return failure(fmt.Sprintf("invalid due_date %q, expected YYYY-MM-DD", *args.DueDate))
		}
	}
	row, err := e.tasks.Update(userID, target.ID, params)
	if err != nil {
		return failure(fmt.Sprintf("could not update task: %v", err))
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Updated task %q", row.Title),
		Task:    summarize(row),
	}
}

type deleteTaskArgs struct {
	TaskTitle  string  `json:"task_title"`
	TaskStatus *string `json:"task_status"`
}

func (e *Executor) deleteTask(userID string, raw json.RawMessage) ToolResult {
	var args deleteTaskArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure("delete_task arguments are not valid JSON")
	}
	target, res := e.resolveByTitle(userID, args.TaskTitle, args.TaskStatus)
	if target == nil {
		return res
	}
	if err := e.tasks.Delete(userID, target.ID); err != nil {
		return failure(fmt.Sprintf("could not delete task: %v", err))
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Deleted task %q", target.Title),
		Task:    summarize(target),
	}
}

// resolveByTitle implements the two-phase disambiguation protocol: an
// ambiguous title mutates nothing and returns the candidates; the model (or
// the user) retries with task_status to select exactly one.
func (e *Executor) resolveByTitle(userID, title string, rawStatus *string) (*db.Task, ToolResult) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, failure("task_title is required")
	}
	var status task.Status
	if rawStatus != nil && *rawStatus != "" {
		st, err := task.ParseStatus(*rawStatus)
		if err != nil {
			return nil, failure(err.Error())
		}
		status = st
	}
	matches, err := e.tasks.FindByTitle(userID, title, status)
	if err != nil {
		return nil, failure(fmt.Sprintf("task lookup failed: %v", err))
	}
	switch len(matches) {
	case 0:
		if status != "" {
			return nil, failure(fmt.Sprintf("no task titled %q with status %q", title, status))
		}
		return nil, failure(fmt.Sprintf("no task titled %q", title))
	case 1:
		row := matches[0]
		return &row, ToolResult{}
	}
	summaries := make([]TaskSummary, 0, len(matches))
	for i := range matches {
		summaries = append(summaries, *summarize(&matches[i]))
	}
	return nil, ToolResult{
		Success: false,
		Message: fmt.Sprintf(
			"found %d tasks titled %q; retry with task_status set to the current status of the intended one",
			len(matches), title,
		),
		Matches: summaries,
	}
}

func summarize(t *db.Task) *TaskSummary {
	out := &TaskSummary{
		Title:    t.Title,
		Status:   t.Status,
		Priority: t.Priority,
		DueDate:  t.DueDate,
	}
	if t.Category != nil {
		out.Category = t.Category.Name
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		out.Description = clip(desc, 80)
	}
	return out
}

// clip shortens s to at most limit runes, never splitting a multibyte
// character.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}

func failure(msg string) ToolResult {
	return ToolResult{Success: false, Message: msg}
}
