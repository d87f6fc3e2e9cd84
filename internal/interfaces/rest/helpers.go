// Package rest carries the HTTP response envelope and error mapping shared
// by every handler.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dcb-treasury/certification-gateway/internal/application"
)

// ErrorDetail mirrors the wire error format shared with the peer.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// Response is the success envelope. Count is set only for list payloads.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Count   *int `json:"count,omitempty"`
}

// WriteJSON writes data inside the success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeBody(w, status, Response{Success: true, Data: data})
}

// WriteList writes a list payload with its count alongside.
func WriteList(w http.ResponseWriter, status int, data any, count int) {
	writeBody(w, status, Response{Success: true, Data: data, Count: &count})
}

// WriteRaw writes an arbitrary top-level body, for responses whose shape is
// fixed by the webhook protocol rather than the envelope.
func WriteRaw(w http.ResponseWriter, status int, body any) {
	writeBody(w, status, body)
}

// WriteError maps any error to its HTTP status and error code and writes the
// failure envelope. Internal errors keep details out of the response.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := application.ToHTTPStatus(err)
	code := application.ToErrorCode(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "code", code)
		message = "An internal error occurred"
	}

	writeBody(w, status, ErrorResponse{
		Success: false,
		Error:   ErrorDetail{Code: code, Message: message},
	})
}

// WriteValidationError reports a 400 without going through the error mapper.
func WriteValidationError(w http.ResponseWriter, message string) {
	writeBody(w, http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   ErrorDetail{Code: application.ErrCodeValidation, Message: message},
	})
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// DecodeJSON parses the request body into dst, rejecting unknown garbage
// with a validation error the caller can write directly.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return application.NewValidationError("Invalid JSON body: " + err.Error())
	}
	return nil
}
