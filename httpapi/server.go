// Package httpapi is the thin HTTP adapter over the relay service. It
// wires routes and middleware, decodes requests into command and query
// messages, and renders the service's error envelopes; all behavior
// lives below it.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/query"
)

const Version = "1.0.0"

// AdmissionGuard is the slice of the ingress guard the middleware needs.
type AdmissionGuard interface {
	Allow(clientID string) bool
	RetryAfter() time.Duration
}

type Config struct {
	Service *core.Service
	Guard   AdmissionGuard
	Logger  glog.Logger
	// AllowedOrigins drives the CORS headers. Empty means same-origin
	// only.
	AllowedOrigins []string
	Now            func() time.Time
}

type Server struct {
	processSync  *command.ProcessSyncCommand
	submitAsync  *command.SubmitAsyncCommand
	getRequest   *query.GetRequestQuery
	listRequests *query.ListRequestsQuery
	stats        *query.StatsQuery

	service   *core.Service
	guard     AdmissionGuard
	logger    glog.Logger
	origins   []string
	now       func() time.Time
	startedAt time.Time
}

func NewServer(cfg Config) *Server {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	adapter := serviceAdapter{service: cfg.Service}
	return &Server{
		processSync:  command.NewProcessSyncCommand(adapter),
		submitAsync:  command.NewSubmitAsyncCommand(adapter),
		getRequest:   query.NewGetRequestQuery(adapter),
		listRequests: query.NewListRequestsQuery(adapter),
		stats:        query.NewStatsQuery(adapter),
		service:      cfg.Service,
		guard:        cfg.Guard,
		logger:       glog.Ensure(cfg.Logger),
		origins:      append([]string(nil), cfg.AllowedOrigins...),
		now:          now,
		startedAt:    now(),
	}
}

// Router assembles the chi routing tree. The rate-limit middleware
// covers the two submission endpoints only; reads stay unthrottled.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/requests", s.handleListRequests)
	r.Get("/requests/{id}", s.handleGetRequest)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/sync", s.handleSync)
		r.Post("/async", s.handleAsync)
	})

	if s.service != nil && s.service.Config().DeploymentMode() == core.DeploymentModePermissive {
		r.Post("/test-callback", s.handleTestCallback)
	}

	return r
}
