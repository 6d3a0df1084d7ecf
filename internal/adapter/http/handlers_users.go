// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"errors"
	"net/http"

	"accounts/internal/app"
)

// fail logs an unexpected error and answers with the 500 envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("error processing request", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.auth.Register(r.Context(), p["username"], p["email"], p["password"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User successfully registered.",
		"userId":  user.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Accounts are keyed by email; "username" is accepted for older clients.
	res, err := s.auth.Login(r.Context(), p.first("email", "username"), p["password"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_token": res.Token,
		"user_id":       res.User.ID,
		"user_email":    res.User.Email,
		"user_role":     res.User.Role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.auth.Logout(r.Context(), sessionToken(r, p))
	switch {
	case err == nil:
		writeResult(w, true, "Successfully logged out.")
	case errors.Is(err, app.ErrInvalidOrExpiredSession):
		writeResult(w, false, "No valid session found or already expired.")
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := s.users.Details(r.Context(), sessionToken(r, p))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": d.Username,
		"email":    d.Email,
		"role":     d.Role,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.users.Update(r.Context(), sessionToken(r, p), p["email"], p["password"])
	switch {
	case err == nil:
		writeResult(w, true, "User updated successfully.")
	case errors.Is(err, app.ErrInvalidOrExpiredSession):
		writeResult(w, false, "Invalid or expired session token.")
	case errors.Is(err, app.ErrNoUpdatesRequested):
		writeResult(w, false, "No updates to perform.")
	case errors.Is(err, app.ErrInvalidInput):
		writeResult(w, false, err.Error())
	case errors.Is(err, app.ErrStoreFailure):
		s.log.Warn("update user", "err", err)
		writeResult(w, false, "Failed to update user.")
	default:
		s.fail(w, r, err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.users.Delete(r.Context(), sessionToken(r, p))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "User and sessions successfully deleted.",
			"success": true,
		})
	case errors.Is(err, app.ErrInvalidOrExpiredSession):
		writeResult(w, false, "Invalid session token or session expired.")
	default:
		s.fail(w, r, err)
	}
}
