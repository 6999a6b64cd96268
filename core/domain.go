package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRequestMode             = errors.New("core: invalid request mode")
	ErrInvalidRequestStatusTransition = errors.New("core: invalid request status transition")
	ErrRequestNotFound                = errors.New("core: request not found")
)

type RequestMode string

const (
	RequestModeSync  RequestMode = "sync"
	RequestModeAsync RequestMode = "async"
)

func ParseRequestMode(raw string) (RequestMode, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case string(RequestModeSync):
		return RequestModeSync, nil
	case string(RequestModeAsync):
		return RequestModeAsync, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRequestMode, raw)
}

type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "pending"
	RequestStatusProcessing     RequestStatus = "processing"
	RequestStatusCompleted      RequestStatus = "completed"
	RequestStatusFailed         RequestStatus = "failed"
	RequestStatusCallbackSent   RequestStatus = "callback_sent"
	RequestStatusCallbackFailed RequestStatus = "callback_failed"
)

// RequestRecord is the persisted lifecycle state of one inbound request.
// The ledger owns it; the dispatcher only ever sees the record identifier
// and a read-only payload derived from it.
type RequestRecord struct {
	ID               string
	Mode             RequestMode
	Status           RequestStatus
	Input            map[string]any
	Result           map[string]any
	ProcessingTimeMS float64
	CallbackURL      string
	CallbackAttempts int
	CreatedAt        time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
}

// TransitionTo advances the record along the fixed lifecycle graph.
// Entering a terminal status stamps CompletedAt exactly once; a later
// terminal entry (the async callback outcome) leaves the original stamp
// untouched.
func (r *RequestRecord) TransitionTo(status RequestStatus, now time.Time) error {
	if r == nil {
		return nil
	}
	if !requestTransitionAllowed(r.Mode, r.Status, status) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidRequestStatusTransition, r.Status, status, r.Mode)
	}
	r.Status = status
	if statusEntersTerminal(status) && r.CompletedAt == nil {
		stamp := now.UTC()
		r.CompletedAt = &stamp
	}
	return nil
}

func requestTransitionAllowed(mode RequestMode, current, next RequestStatus) bool {
	allowed := map[RequestStatus]map[RequestStatus]struct{}{
		RequestStatusPending: {
			RequestStatusProcessing: {},
		},
		RequestStatusProcessing: {
			RequestStatusCompleted: {},
			RequestStatusFailed:    {},
		},
	}
	if mode == RequestModeAsync {
		allowed[RequestStatusCompleted] = map[RequestStatus]struct{}{
			RequestStatusCallbackSent:   {},
			RequestStatusCallbackFailed: {},
		}
	}
	next = RequestStatus(strings.TrimSpace(string(next)))
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

func statusEntersTerminal(status RequestStatus) bool {
	switch status {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusCallbackSent, RequestStatusCallbackFailed:
		return true
	}
	return false
}

// ListFilter narrows ListRequests results. A zero Mode means no filter;
// Limit is clamped to MaxListLimit by the service.
type ListFilter struct {
	Mode  RequestMode
	Limit int
}

type WorkResult struct {
	Result           map[string]any
	ProcessingTimeMS float64
}

// CallbackPayload is the completion notification posted to the validated
// callback destination.
type CallbackPayload struct {
	RequestID        string
	Result           map[string]any
	ProcessingTimeMS float64
	Timestamp        time.Time
}

// DeliveryOutcome reports how a callback delivery ended. Attempts counts
// network attempts actually made; a circuit-open short circuit makes none.
type DeliveryOutcome struct {
	Delivered   bool
	Attempts    int
	CircuitOpen bool
}

type RequestCounts struct {
	Total                int
	Sync                 int
	Async                int
	Completed            int
	Failed               int
	SyncAvgProcessingMS  float64
	AsyncAvgProcessingMS float64
}

// RateLimitSnapshot is the ingress guard's observability view.
type RateLimitSnapshot struct {
	ActiveClients        int
	TotalRecentRequests  int
	MaxRequestsPerWindow int
	WindowSeconds        int
}

type CircuitHostStats struct {
	State         string
	FailureCount  int
	LastFailureAt *time.Time
}

// CircuitStats is the dispatcher's per-destination circuit snapshot.
type CircuitStats struct {
	Hosts               map[string]CircuitHostStats
	TotalHostsTracked   int
	OpenCircuits        int
	Threshold           int
	ResetTimeoutSeconds int
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
