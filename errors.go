package main

import (
	"net/http"

	"github.com/example/authcore/internal/apperr"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{
		Code:    code,
		Message: message,
	})
}

// writeAppError maps err onto its status and code. Outside production the
// underlying error text is included as details.
func (a *App) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := APIError{Code: apperr.Code(err), Message: apperr.Message(err)}
	if !apperr.IsExpected(err) {
		a.Log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	if !a.Cfg.IsProduction() && err.Error() != body.Message {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
