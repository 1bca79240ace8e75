package httpapi

import (
	"net/http"

	"taskhive/server/internal/db"
)

type registerPayload struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshPayload struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordPayload struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordPayload struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type changePasswordPayload struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	_, pair, err := s.deps.Auth.Register(payload.Name, payload.Email, payload.Password)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	_, pair, err := s.deps.Auth.Login(payload.Email, payload.Password)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	pair, err := s.deps.Auth.Refresh(payload.RefreshToken)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := s.deps.Auth.Logout(user.ID); err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	writeJSON(w, http.StatusOK, userView(user))
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload forgotPasswordPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	if err := s.deps.Auth.ForgotPassword(r.Context(), payload.Email); err != nil {
		s.domainError(w, r, err)
		return
	}
	// Same answer for known and unknown addresses.
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	if err := s.deps.Auth.ResetPassword(payload.Token, payload.Password); err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload changePasswordPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	user, _ := userFrom(r.Context())
	if err := s.deps.Auth.ChangePassword(user.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

func userView(u *db.User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"banned":     u.Banned,
		"created_at": u.CreatedAt,
	}
}
