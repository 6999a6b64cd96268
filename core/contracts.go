package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// RequestStore persists request records. Any backend with per-record
// serialized writes satisfies the contract; the shipped implementation is
// store/sql on bun+sqlite.
type RequestStore interface {
	Create(ctx context.Context, record RequestRecord) (RequestRecord, error)
	Get(ctx context.Context, id string) (RequestRecord, error)
	Update(ctx context.Context, record RequestRecord) (RequestRecord, error)
	List(ctx context.Context, filter ListFilter) ([]RequestRecord, error)
	Counts(ctx context.Context) (RequestCounts, error)
}

// IngressGuard is the admission gate in front of the endpoints.
type IngressGuard interface {
	Allow(clientID string) bool
	Snapshot() RateLimitSnapshot
}

// EgressValidator vets a caller-supplied callback URL before it is stored
// or dialed. A nil error means the destination is acceptable.
type EgressValidator interface {
	Validate(rawURL string) error
}

// CallbackDispatcher delivers one completion payload, applying its own
// retry and circuit policy. It never returns an error: delivery failure
// is an outcome the ledger records, not a fault the caller can handle.
type CallbackDispatcher interface {
	Deliver(ctx context.Context, rawURL string, payload CallbackPayload) DeliveryOutcome
	Stats() CircuitStats
}

type WorkProcessor interface {
	ValidateInput(input map[string]any) error
	Process(ctx context.Context, input map[string]any, complexity int) (WorkResult, error)
}

type ProcessRequest struct {
	Input      map[string]any
	Complexity int
}

type SubmitRequest struct {
	Input       map[string]any
	Complexity  int
	CallbackURL string
}

type SyncResult struct {
	RequestID        string
	Result           map[string]any
	ProcessingTimeMS float64
	Timestamp        time.Time
}

type AsyncAck struct {
	RequestID string
	Status    string
	Message   string
}

type StatsReport struct {
	Requests  RequestCounts
	RateLimit RateLimitSnapshot
	Circuits  CircuitStats
	Uptime    time.Duration
	Timestamp time.Time
}
