package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeResult(w http.ResponseWriter, success bool, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "message": message})
}

// params holds request inputs. Values come from a JSON object body when the
// request carries one, then from query and form fields.
type params map[string]string

func readParams(r *http.Request) (params, error) {
	p := params{}

	if isJSON(r) && r.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		for k, v := range body {
			switch t := v.(type) {
			case string:
				p[k] = t
			case float64:
				p[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				p[k] = strconv.FormatBool(t)
			}
		}
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	for k, vs := range r.Form {
		if _, ok := p[k]; !ok && len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	return p, nil
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// first returns the first non-empty value among keys.
func (p params) first(keys ...string) string {
	for _, k := range keys {
		if v := p[k]; v != "" {
			return v
		}
	}
	return ""
}

// sessionToken looks for the token in the session_token parameter, then the
// X-Session-Token header, then an Authorization bearer credential.
func sessionToken(r *http.Request, p params) string {
	if tok := p["session_token"]; tok != "" {
		return tok
	}
	if tok := r.Header.Get("X-Session-Token"); tok != "" {
		return tok
	}
	scheme, cred, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(cred)
	}
	return ""
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}
