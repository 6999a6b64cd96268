package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-relay/core"
)

const (
	TypeGetRequest   = "relay.query.request.get"
	TypeListRequests = "relay.query.request.list"
	TypeStats        = "relay.query.stats"
)

type GetRequestMessage struct {
	RequestID string
}

func (GetRequestMessage) Type() string { return TypeGetRequest }

func (m GetRequestMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("query: request id is required")
	}
	return nil
}

type ListRequestsMessage struct {
	Filter core.ListFilter
}

func (ListRequestsMessage) Type() string { return TypeListRequests }

func (m ListRequestsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if mode := strings.TrimSpace(string(m.Filter.Mode)); mode != "" {
		if _, err := core.ParseRequestMode(mode); err != nil {
			return fmt.Errorf("query: %w", err)
		}
	}
	return nil
}

type StatsMessage struct{}

func (StatsMessage) Type() string { return TypeStats }

func (StatsMessage) Validate() error { return nil }
