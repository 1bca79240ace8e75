package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"taskhive/server/internal/assistant"
	"taskhive/server/internal/auth"
	"taskhive/server/internal/category"
	"taskhive/server/internal/task"
)

type Deps struct {
	Auth       *auth.Service
	Tokens     *auth.TokenIssuer
	Tasks      *task.Service
	Categories *category.Service
	Assistant  *assistant.Orchestrator
	Log        *slog.Logger
	Debug      bool
}

type Server struct {
	deps     Deps
	router   chi.Router
	hub      *WSHub
	validate *validator.Validate
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		hub:      NewWSHub(),
		validate: validator.New(),
	}
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Post("/change-password", s.handleChangePassword)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/archived", s.handleListArchivedTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Put("/{id}", s.handleUpdateTask)
			r.Delete("/{id}", s.handleDeleteTask)
			r.Post("/{id}/complete", s.handleCompleteTask)
			r.Post("/{id}/archive", s.handleArchiveTask)
			r.Post("/{id}/unarchive", s.handleUnarchiveTask)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Get("/{id}", s.handleGetCategory)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/", s.handleCreateCategory)
				r.Put("/{id}", s.handleUpdateCategory)
				r.Delete("/{id}", s.handleDeleteCategory)
			})
		})

		r.Route("/ai", func(r chi.Router) {
			r.Post("/chat", s.handleChat)
			r.Get("/messages", s.handleListMessages)
			r.Delete("/conversations", s.handleResetConversation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Post("/users/{id}/ban", s.handleBanUser)
			r.Post("/users/{id}/unban", s.handleUnbanUser)
		})

		r.Get("/ws", s.handleWS)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
