package relay

import (
	"fmt"

	relaycommand "github.com/goliatone/go-relay/command"
	relayquery "github.com/goliatone/go-relay/query"
)

// CommandQueryService is the slice of the relay service the facade
// needs: the two mutating pipelines plus the read surface.
type CommandQueryService interface {
	relaycommand.MutatingService
	relayquery.RequestReader
	relayquery.StatsReader
}

type Commands struct {
	ProcessSync *relaycommand.ProcessSyncCommand
	SubmitAsync *relaycommand.SubmitAsyncCommand
}

type Queries struct {
	GetRequest   *relayquery.GetRequestQuery
	ListRequests *relayquery.ListRequestsQuery
	Stats        *relayquery.StatsQuery
}

// Facade bundles the command and query handlers over one service so
// hosts wire a single value into their dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	statsReader relayquery.StatsReader
}

// WithStatsReader overrides the stats source, for hosts that aggregate
// monitoring data outside the relay service.
func WithStatsReader(reader relayquery.StatsReader) FacadeOption {
	return func(options *facadeOptions) {
		options.statsReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("relay: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	statsReader := cfg.statsReader
	if statsReader == nil {
		statsReader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ProcessSync: relaycommand.NewProcessSyncCommand(service),
		SubmitAsync: relaycommand.NewSubmitAsyncCommand(service),
	}
	facade.queries = Queries{
		GetRequest:   relayquery.NewGetRequestQuery(service),
		ListRequests: relayquery.NewListRequestsQuery(service),
		Stats:        relayquery.NewStatsQuery(statsReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
