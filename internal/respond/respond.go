package respond

import (
	"encoding/json"
	"net/http"
)

// Every response body uses the same envelope so clients can branch on
// error.code without sniffing HTTP statuses.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Success: true, Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string) {
	write(w, status, envelope{Success: false, Error: &ErrorBody{Code: code, Message: message}})
}

func ErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, envelope{Success: false, Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
