// Package apierr maps domain failures onto the API error taxonomy and writes
// them as JSON.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTrialExpired    = errors.New("trial_expired")
	ErrValidation      = errors.New("validation_error")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate_limited")
	ErrMisconfigured   = errors.New("server_misconfigured")
	ErrUpstreamTimeout = errors.New("upstream_timeout")
	ErrMethod          = errors.New("method_not_allowed")
)

// Validation wraps ErrValidation with a human readable detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Body is the JSON error envelope.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Classify returns the status code and error code for err. Unknown errors are
// internal_error.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, ErrUnauthorized.Error()
	case errors.Is(err, ErrTrialExpired):
		return http.StatusForbidden, ErrTrialExpired.Error()
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrValidation.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, ErrConflict.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrRateLimited.Error()
	case errors.Is(err, ErrMethod):
		return http.StatusMethodNotAllowed, ErrMethod.Error()
	case errors.Is(err, ErrMisconfigured):
		return http.StatusInternalServerError, ErrMisconfigured.Error()
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusInternalServerError, ErrUpstreamTimeout.Error()
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// Write converts err into its JSON response. 4xx responses carry the wrapped
// detail as message when there is one; 5xx always carry the message.
func Write(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status, code := Classify(err)
	body := Body{Error: code}
	if status >= http.StatusInternalServerError {
		body.Message = err.Error()
		if logger != nil {
			logger.Warnw("request failed", "status", status, "err", err)
		}
	} else {
		if msg := err.Error(); msg != code {
			body.Message = msg
		}
		if logger != nil {
			logger.Debugw("request rejected", "status", status, "err", err)
		}
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
