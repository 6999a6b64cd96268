package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/core"
)

var (
	_ gocmd.Querier[GetRequestMessage, core.RequestRecord]     = (*GetRequestQuery)(nil)
	_ gocmd.Querier[ListRequestsMessage, []core.RequestRecord] = (*ListRequestsQuery)(nil)
	_ gocmd.Querier[StatsMessage, core.StatsReport]            = (*StatsQuery)(nil)
)
