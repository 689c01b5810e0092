// Package apierror defines the JSON error envelope every gateway failure is
// reported with: {"error":{"message":"...","status":404}}.
package apierror

import (
	"encoding/json"
	"net/http"
)

type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// New builds the envelope. An empty message falls back to the status text.
func New(status int, message string) Body {
	if message == "" {
		message = http.StatusText(status)
	}
	return Body{Error: Detail{Message: message, Status: status}}
}

// Write sends the envelope with the given status.
func Write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(New(status, message))
}
