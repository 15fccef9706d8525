package server

import (
	"encoding/json"
	"net/http"

	"github.com/rcliao/ratemykey/internal/engine"
)

// APIError is the body of every failed request.
type APIError struct {
	Error     bool   `json:"error"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeStoreFailed      = "STORE_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, reason string) {
	respondJSON(w, status, APIError{
		Error:     true,
		Code:      code,
		Reason:    reason,
		RequestID: RequestIDFrom(r.Context()),
	})
}

// statusFor maps engine errors to a status code and error code.
func statusFor(err error) (int, string) {
	switch {
	case engine.IsValidation(err):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case engine.IsStore(err):
		return http.StatusInternalServerError, ErrCodeStoreFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
