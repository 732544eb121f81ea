package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"accounting-core/internal/apperr"
)

type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeAppError maps a command error to its HTTP status through the error
// kind. Unclassified errors surface as 500 without leaking their message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	resp := errorResponse{
		Error:     err.Error(),
		Code:      string(kind),
		RequestID: requestIDFromContext(r.Context()),
	}
	if kind == apperr.Internal {
		resp.Error = "internal server error"
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Details = ae.Details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
