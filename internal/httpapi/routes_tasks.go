package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskhive/server/internal/db"
	"taskhive/server/internal/task"
)

type createTaskPayload struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      string `json:"status" validate:"omitempty,oneof=todo in_progress completed archived"`
	CategoryID  string `json:"category_id"`
	DueDate     string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"max=2000"`
}

type updateTaskPayload struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      *string `json:"status" validate:"omitempty,oneof=todo in_progress completed archived"`
	CategoryID  *string `json:"category_id"`
	DueDate     *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       *string `json:"notes" validate:"omitempty,max=2000"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	query := r.URL.Query()

	filters := task.ListFilters{
		CategoryID: query.Get("category_id"),
		DueDate:    query.Get("due_date"),
		Overdue:    query.Get("overdue") == "true",
		SortBy:     query.Get("sort_by"),
		SortOrder:  query.Get("sort_order"),
	}
	fields := map[string]string{}
	if raw := query.Get("priority"); raw != "" {
		p, err := task.ParsePriority(raw)
		if err != nil {
			fields["priority"] = "must be one of: low medium high"
		} else {
			filters.Priority = p
		}
	}
	if raw := query.Get("status"); raw != "" {
		st, err := task.ParseStatus(raw)
		if err != nil {
			fields["status"] = "must be one of: todo in_progress completed archived"
		} else {
			filters.Status = st
		}
	}
	if filters.DueDate != "" {
		if _, err := time.Parse("2006-01-02", filters.DueDate); err != nil {
			fields["due_date"] = "must use the YYYY-MM-DD format"
		}
	}
	if len(fields) > 0 {
		respondValidation(w, fields)
		return
	}

	rows, err := s.deps.Tasks.List(user.ID, filters)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskViews(rows))
}

func (s *Server) handleListArchivedTasks(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	rows, err := s.deps.Tasks.ListArchived(user.ID)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskViews(rows))
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var payload createTaskPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	user, _ := userFrom(r.Context())
	params := task.CreateParams{
		Title:       payload.Title,
		Description: payload.Description,
		Priority:    task.Priority(payload.Priority),
		Status:      task.Status(payload.Status),
		CategoryID:  payload.CategoryID,
		DueDate:     payload.DueDate,
		Notes:       payload.Notes,
	}
	row, err := s.deps.Tasks.Create(user.ID, params)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	s.hub.Publish(user.ID, "task.created", map[string]any{"task_id": row.ID})
	writeJSON(w, http.StatusCreated, taskView(row))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	row, err := s.deps.Tasks.Get(user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(row))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var payload updateTaskPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	user, _ := userFrom(r.Context())
	params := task.UpdateParams{
		Title:       payload.Title,
		Description: payload.Description,
		CategoryID:  payload.CategoryID,
		DueDate:     payload.DueDate,
		Notes:       payload.Notes,
	}
	if payload.Priority != nil {
		p := task.Priority(*payload.Priority)
		params.Priority = &p
	}
	if payload.Status != nil {
		st := task.Status(*payload.Status)
		params.Status = &st
	}
	row, err := s.deps.Tasks.Update(user.ID, chi.URLParam(r, "id"), params)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	s.hub.Publish(user.ID, "task.updated", map[string]any{"task_id": row.ID})
	writeJSON(w, http.StatusOK, taskView(row))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.deps.Tasks.Delete(user.ID, id); err != nil {
		s.domainError(w, r, err)
		return
	}
	s.hub.Publish(user.ID, "task.deleted", map[string]any{"task_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.deps.Tasks.Complete)
}

func (s *Server) handleArchiveTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.deps.Tasks.Archive)
}

func (s *Server) handleUnarchiveTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.deps.Tasks.Unarchive)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(userID, id string) (*db.Task, error)) {
	user, _ := userFrom(r.Context())
	row, err := op(user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	s.hub.Publish(user.ID, "task.updated", map[string]any{"task_id": row.ID, "status": row.Status})
	writeJSON(w, http.StatusOK, taskView(row))
}

func taskView(t *db.Task) map[string]any {
	out := map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"priority":    t.Priority,
		"status":      t.Status,
		"due_date":    t.DueDate,
		"notes":       t.Notes,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}
	if t.PreviousStatus != "" {
		out["previous_status"] = t.PreviousStatus
	}
	if t.CategoryID != "" {
		out["category_id"] = t.CategoryID
	}
	if t.Category != nil {
		out["category"] = map[string]any{
			"id":    t.Category.ID,
			"name":  t.Category.Name,
			"color": t.Category.Color,
		}
	}
	return out
}

func taskViews(rows []db.Task) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		out = append(out, taskView(&rows[i]))
	}
	return out
}
