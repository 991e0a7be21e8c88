// Package api holds the JSON envelope every local API endpoint answers with.
package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every response. Data is omitted when empty; Error is set only
// when Success is false.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Send writes the envelope as JSON with statusCode
func (e Envelope) Send(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// Success sends data with 200
func Success(w http.ResponseWriter, data any) {
	Envelope{Success: true, Data: data}.Send(w, http.StatusOK)
}

// Error sends message with statusCode
func Error(w http.ResponseWriter, statusCode int, message string) {
	Envelope{Error: message}.Send(w, statusCode)
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, message)
}

// Decode reads a JSON request body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
