package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput         = "RELAY_BAD_INPUT"
	ServiceErrorInvalidCallback  = "RELAY_INVALID_CALLBACK"
	ServiceErrorRateLimited      = "RELAY_RATE_LIMITED"
	ServiceErrorRequestNotFound  = "RELAY_REQUEST_NOT_FOUND"
	ServiceErrorProcessingFailed = "RELAY_PROCESSING_FAILED"
	ServiceErrorInternal         = "RELAY_INTERNAL_ERROR"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorRequestNotFound)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "callback url"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorInvalidCallback)
	case strings.Contains(msg, "transition"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorInternal)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "exceeds"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorRequestNotFound
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return ServiceErrorProcessingFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
