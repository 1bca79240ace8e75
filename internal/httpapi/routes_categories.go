package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskhive/server/internal/category"
	"taskhive/server/internal/db"
)

type categoryPayload struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Color       string `json:"color" validate:"omitempty,max=32"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Categories.List()
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		out = append(out, categoryView(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	row, err := s.deps.Categories.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryView(row))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	row, err := s.deps.Categories.Create(category.Params{
		Name:        payload.Name,
		Description: payload.Description,
		Color:       payload.Color,
	})
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryView(row))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	row, err := s.deps.Categories.Update(chi.URLParam(r, "id"), category.Params{
		Name:        payload.Name,
		Description: payload.Description,
		Color:       payload.Color,
	})
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryView(row))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Categories.Delete(chi.URLParam(r, "id")); err != nil {
		s.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func categoryView(c *db.Category) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"color":       c.Color,
		"created_at":  c.CreatedAt,
		"updated_at":  c.UpdatedAt,
	}
}
