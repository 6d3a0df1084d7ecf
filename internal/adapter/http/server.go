package adapthttp

import (
	"log/slog"
	"net/http"

	"accounts/internal/app"
)

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	auth  *app.AuthService
	users *app.UserService
	log   *slog.Logger
}

// New creates a Server wired to the given application services.
func New(auth *app.AuthService, users *app.UserService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{auth: auth, users: users, log: logger}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/users/register", s.handleRegister)
	mux.HandleFunc("/users/login", s.handleLogin)
	mux.HandleFunc("/users/logout", s.handleLogout)
	mux.HandleFunc("/users/details", s.handleDetails)
	mux.HandleFunc("/users/update", s.handleUpdate)
	mux.HandleFunc("/users/delete", s.handleDelete)

	mux.HandleFunc("/welcome-message", s.handleWelcome)

	return s.loggingMiddleware(s.recoverMiddleware(withNoCache(mux)))
}
