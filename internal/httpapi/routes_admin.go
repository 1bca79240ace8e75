package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Auth.ListUsers()
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		out = append(out, userView(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	s.handleSetBanned(w, r, true)
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	s.handleSetBanned(w, r, false)
}

func (s *Server) handleSetBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	user, err := s.deps.Auth.SetBanned(chi.URLParam(r, "id"), banned)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}
