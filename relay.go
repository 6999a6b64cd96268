// Package relay re-exports the core surface so host applications can
// depend on a single import path. The behavior lives in core and the
// sibling packages; nothing here adds semantics.
package relay

import "github.com/goliatone/go-relay/core"

const ModuleName = "go-relay"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type RequestMode = core.RequestMode
type RequestStatus = core.RequestStatus
type RequestRecord = core.RequestRecord
type ListFilter = core.ListFilter
type StatsReport = core.StatsReport

type ProcessRequest = core.ProcessRequest
type SubmitRequest = core.SubmitRequest
type SyncResult = core.SyncResult
type AsyncAck = core.AsyncAck

type RequestStore = core.RequestStore
type IngressGuard = core.IngressGuard
type EgressValidator = core.EgressValidator
type CallbackDispatcher = core.CallbackDispatcher
type WorkProcessor = core.WorkProcessor

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithRequestStore       = core.WithRequestStore
	WithIngressGuard       = core.WithIngressGuard
	WithEgressValidator    = core.WithEgressValidator
	WithCallbackDispatcher = core.WithCallbackDispatcher
	WithWorkProcessor      = core.WithWorkProcessor
	WithNowFunc            = core.WithNowFunc
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func StrictConfig() Config {
	return core.StrictConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
