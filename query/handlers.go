// Package query exposes the read-side relay operations as go-command
// queriers.
package query

import (
	"context"

	"github.com/goliatone/go-relay/core"
)

type RequestReader interface {
	GetRequest(ctx context.Context, id string) (core.RequestRecord, error)
	ListRequests(ctx context.Context, filter core.ListFilter) ([]core.RequestRecord, error)
}

type StatsReader interface {
	Stats(ctx context.Context) (core.StatsReport, error)
}

type GetRequestQuery struct {
	reader RequestReader
}

func NewGetRequestQuery(reader RequestReader) *GetRequestQuery {
	return &GetRequestQuery{reader: reader}
}

func (q *GetRequestQuery) Query(ctx context.Context, msg GetRequestMessage) (core.RequestRecord, error) {
	if q == nil || q.reader == nil {
		return core.RequestRecord{}, queryDependencyError("query: request reader is required")
	}
	return q.reader.GetRequest(ctx, msg.RequestID)
}

type ListRequestsQuery struct {
	reader RequestReader
}

func NewListRequestsQuery(reader RequestReader) *ListRequestsQuery {
	return &ListRequestsQuery{reader: reader}
}

func (q *ListRequestsQuery) Query(ctx context.Context, msg ListRequestsMessage) ([]core.RequestRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: request reader is required")
	}
	return q.reader.ListRequests(ctx, msg.Filter)
}

type StatsQuery struct {
	reader StatsReader
}

func NewStatsQuery(reader StatsReader) *StatsQuery {
	return &StatsQuery{reader: reader}
}

func (q *StatsQuery) Query(ctx context.Context, msg StatsMessage) (core.StatsReport, error) {
	if q == nil || q.reader == nil {
		return core.StatsReport{}, queryDependencyError("query: stats reader is required")
	}
	return q.reader.Stats(ctx)
}
