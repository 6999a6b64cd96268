package httpapi

import (
	"context"
	"fmt"

	"github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/query"
)

// serviceAdapter bridges the core service into the command and query
// contracts without the handler packages importing each other.
type serviceAdapter struct {
	service *core.Service
}

func (a serviceAdapter) ProcessSync(ctx context.Context, req core.ProcessRequest) (core.SyncResult, error) {
	if a.service == nil {
		return core.SyncResult{}, fmt.Errorf("httpapi: relay service is not configured")
	}
	return a.service.ProcessSync(ctx, req)
}

func (a serviceAdapter) SubmitAsync(ctx context.Context, req core.SubmitRequest) (core.AsyncAck, error) {
	if a.service == nil {
		return core.AsyncAck{}, fmt.Errorf("httpapi: relay service is not configured")
	}
	return a.service.SubmitAsync(ctx, req)
}

func (a serviceAdapter) GetRequest(ctx context.Context, id string) (core.RequestRecord, error) {
	if a.service == nil {
		return core.RequestRecord{}, fmt.Errorf("httpapi: relay service is not configured")
	}
	return a.service.GetRequest(ctx, id)
}

func (a serviceAdapter) ListRequests(ctx context.Context, filter core.ListFilter) ([]core.RequestRecord, error) {
	if a.service == nil {
		return nil, fmt.Errorf("httpapi: relay service is not configured")
	}
	return a.service.ListRequests(ctx, filter)
}

func (a serviceAdapter) Stats(ctx context.Context) (core.StatsReport, error) {
	if a.service == nil {
		return core.StatsReport{}, fmt.Errorf("httpapi: relay service is not configured")
	}
	return a.service.Stats(ctx)
}

var (
	_ command.MutatingService = serviceAdapter{}
	_ query.RequestReader     = serviceAdapter{}
	_ query.StatsReader       = serviceAdapter{}
)
