package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"taskhive/server/internal/auth"
	"taskhive/server/internal/category"
	"taskhive/server/internal/provider"
	"taskhive/server/internal/task"
)

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"code": errCode, "message": msg},
	})
}

// respondValidation answers 422 with field-level messages.
func respondValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error": map[string]any{
			"code":    "VALIDATION_FAILED",
			"message": "request validation failed",
			"fields":  fields,
		},
	})
}

// decodeValid decodes the JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler may proceed.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_JSON", "request body is not valid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[jsonFieldName(fe)] = validationMessage(fe)
			}
			respondValidation(w, fields)
			return false
		}
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request")
		return false
	}
	return true
}

func jsonFieldName(fe validator.FieldError) string {
	// StructNamespace looks like "dto.FieldName"; the DTOs keep json tags
	// aligned with snake_case field names.
	name := fe.Field()
	return toSnake(name)
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "is too short (minimum " + fe.Param() + ")"
	case "max":
		return "is too long (maximum " + fe.Param() + ")"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must use the YYYY-MM-DD format"
	default:
		return "is invalid"
	}
}

// domainError maps service-layer errors onto the error taxonomy. Internal
// detail is substituted with a generic message unless debug is enabled; full
// detail always goes to the server log.
func (s *Server) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		respondError(w, http.StatusNotFound, "TASK_NOT_FOUND", "task not found")
	case errors.Is(err, category.ErrNotFound), errors.Is(err, task.ErrCategoryNotFound):
		respondError(w, http.StatusNotFound, "CATEGORY_NOT_FOUND", "category not found")
	case errors.Is(err, auth.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, auth.ErrEmailTaken):
		respondValidation(w, map[string]string{"email": "is already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, auth.ErrUserBanned):
		respondError(w, http.StatusForbidden, "USER_BANNED", "account is banned")
	case errors.Is(err, auth.ErrInvalidResetToken):
		respondError(w, http.StatusBadRequest, "INVALID_RESET_TOKEN", "invalid or expired reset token")
	case errors.Is(err, provider.ErrUpstream):
		s.logError(r, err)
		respondError(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", s.publicError(err, "completion provider unavailable"))
	default:
		s.logError(r, err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", s.publicError(err, "internal server error"))
	}
}

func (s *Server) publicError(err error, generic string) string {
	if s.deps.Debug {
		return err.Error()
	}
	return generic
}

func (s *Server) logError(r *http.Request, err error) {
	args := []any{"path", r.URL.Path, "error", err}
	if u, ok := userFrom(r.Context()); ok {
		args = append(args, "user_id", u.ID)
	}
	s.deps.Log.Error("request failed", args...)
}
