package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"grimm.is/wlanctl/internal/i18n"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := ErrorResponse{Error: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON sends a JSON success response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteErrorCtx sends a localized JSON error response
func WriteErrorCtx(w http.ResponseWriter, r *http.Request, code int, format string, args ...any) {
	p := i18n.GetPrinter(r.Context())
	msg := p.Sprintf(format, args...)
	WriteError(w, code, msg)
}

// queryInt parses a positive integer query parameter, clamped to max.
func queryInt(r *http.Request, name string, def, max int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, max), true
}
