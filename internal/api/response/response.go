// Package response holds the JSON envelopes every endpoint answers with.
// Success bodies are {"data": ...}; failures are {"error": {code, message, details}}.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON answers 200 with data.
func JSON(w http.ResponseWriter, data any) { write(w, http.StatusOK, envelope{Data: data}) }

// Accepted answers 202 for work that continues in the background.
func Accepted(w http.ResponseWriter, data any) { write(w, http.StatusAccepted, envelope{Data: data}) }

// Error answers status with a machine-readable code. details is omitted when nil.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, envelope{Error: &errorBody{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response body", "status", status, "error", err)
	}
}
