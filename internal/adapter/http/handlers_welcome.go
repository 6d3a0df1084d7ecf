package adapthttp

import (
	"net/http"
	"strconv"
)

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	// A missing or malformed user_id gets the generic greeting.
	var userID *int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			userID = &id
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": s.users.Welcome(r.Context(), userID)})
}
