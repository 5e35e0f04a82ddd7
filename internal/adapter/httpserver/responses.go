package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-chat-router/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP status codes.
func writeError(w http.ResponseWriter, err error, details any) {
	code, name := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code, name = http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code, name = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrAllCredentialsExhausted):
		code, name = http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		code, name = http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrNoBackend), errors.Is(err, domain.ErrPrimaryUnavailable):
		code, name = http.StatusServiceUnavailable, "NO_BACKEND"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: name, Message: err.Error(), Details: details}})
}
