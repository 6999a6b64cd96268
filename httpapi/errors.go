package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/egress"
	"github.com/goliatone/go-relay/ratelimit"
)

var (
	errMalformedBody = goerrors.New("httpapi: request body must be a json object", goerrors.CategoryBadInput).
				WithCode(http.StatusBadRequest).
				WithTextCode(core.ServiceErrorBadInput)
	errInvalidLimit = goerrors.New("httpapi: limit must be a non-negative integer", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	errMissingResult = goerrors.New("httpapi: handler produced no result", goerrors.CategoryInternal).
				WithCode(http.StatusInternalServerError).
				WithTextCode(core.ServiceErrorInternal)
)

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError renders any error as the service envelope. Unmapped errors
// fall through the service mapper first, so plain errors still pick up a
// category and status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
		if !goerrors.As(mapped, &rich) {
			rich = goerrors.New("internal error", goerrors.CategoryInternal).
				WithCode(http.StatusInternalServerError).
				WithTextCode(core.ServiceErrorInternal)
		}
	}

	status := rich.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	textCode := rich.TextCode
	if textCode == "" {
		textCode = core.ServiceErrorInternal
	}

	response := errorResponse{
		Error:   textCode,
		Message: rich.Message,
		Reason:  egress.Reason(err),
	}
	if rich.Metadata != nil {
		switch v := rich.Metadata["retry_after"].(type) {
		case int:
			response.RetryAfter = v
		case float64:
			response.RetryAfter = int(v)
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	s.writeJSON(w, status, response)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		s.writeError(w, r, err)
		return
	}
	s.writeError(w, r, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("httpapi: %v", err)).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput))
}

func (s *Server) writeThrottled(w http.ResponseWriter, throttled ratelimit.ThrottledError) {
	seconds := retryAfterSeconds(throttled.RetryAfter)
	if seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	envelope := throttled.ToServiceError()
	s.writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:      envelope.TextCode,
		Message:    envelope.Message,
		RetryAfter: seconds,
	})
}
