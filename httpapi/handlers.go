package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/command"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/query"
)

// maxBodyBytes bounds request bodies well above the work processor's own
// input cap, so oversized payloads fail fast with a clear envelope.
const maxBodyBytes = 64 * 1024

type submitBody struct {
	Data        map[string]any `json:"data"`
	Complexity  int            `json:"complexity"`
	CallbackURL string         `json:"callback_url"`
}

type syncResponse struct {
	RequestID        string         `json:"request_id"`
	Result           map[string]any `json:"result"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	Timestamp        string         `json:"timestamp"`
}

type asyncResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type requestResponse struct {
	RequestID        string         `json:"request_id"`
	Mode             string         `json:"mode"`
	Status           string         `json:"status"`
	Input            map[string]any `json:"input,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	CallbackURL      string         `json:"callback_url,omitempty"`
	CallbackAttempts int            `json:"callback_attempts"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        string         `json:"created_at"`
	CompletedAt      string         `json:"completed_at,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeSubmitBody(w, r)
	if !ok {
		return
	}

	msg := command.ProcessSyncMessage{Request: core.ProcessRequest{
		Input:      body.Data,
		Complexity: body.Complexity,
	}}
	if err := msg.Validate(); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	collector := gocmd.NewResult[core.SyncResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := s.processSync.Execute(ctx, msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, ok := collector.Load()
	if !ok {
		s.writeError(w, r, errMissingResult)
		return
	}

	s.writeJSON(w, http.StatusOK, syncResponse{
		RequestID:        result.RequestID,
		Result:           result.Result,
		ProcessingTimeMS: result.ProcessingTimeMS,
		Timestamp:        result.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeSubmitBody(w, r)
	if !ok {
		return
	}

	msg := command.SubmitAsyncMessage{Request: core.SubmitRequest{
		Input:       body.Data,
		Complexity:  body.Complexity,
		CallbackURL: body.CallbackURL,
	}}
	if err := msg.Validate(); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	collector := gocmd.NewResult[core.AsyncAck]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := s.submitAsync.Execute(ctx, msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	ack, ok := collector.Load()
	if !ok {
		s.writeError(w, r, errMissingResult)
		return
	}

	s.writeJSON(w, http.StatusOK, asyncResponse{
		RequestID: ack.RequestID,
		Status:    ack.Status,
		Message:   ack.Message,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	msg := query.GetRequestMessage{RequestID: chi.URLParam(r, "id")}
	if err := msg.Validate(); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	record, err := s.getRequest.Query(r.Context(), msg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, requestToResponse(record))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter := core.ListFilter{}
	if rawMode := strings.TrimSpace(r.URL.Query().Get("mode")); rawMode != "" {
		mode, err := core.ParseRequestMode(rawMode)
		if err != nil {
			s.writeBadRequest(w, r, err)
			return
		}
		filter.Mode = mode
	}
	if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			s.writeBadRequest(w, r, errInvalidLimit)
			return
		}
		filter.Limit = limit
	}

	records, err := s.listRequests.Query(r.Context(), query.ListRequestsMessage{Filter: filter})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	responses := make([]requestResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, requestToResponse(record))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"requests": responses,
		"count":    len(responses),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	now := s.now().UTC()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      now.Format(time.RFC3339Nano),
		"version":        Version,
		"uptime_seconds": now.Sub(s.startedAt).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.Query(r.Context(), query.StatsMessage{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsToResponse(report))
}

// handleTestCallback is the development callback sink: it echoes the
// payload back so async flows can be exercised end to end against the
// service itself. Registered in permissive mode only.
func (s *Server) handleTestCallback(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		s.writeBadRequest(w, r, errMalformedBody)
		return
	}
	s.logger.Info("test callback received",
		"request_id", payload["request_id"],
		"keys", len(payload),
	)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "received",
		"received_at": s.now().UTC().Format(time.RFC3339Nano),
		"echo":        payload,
	})
}

func (s *Server) decodeSubmitBody(w http.ResponseWriter, r *http.Request) (submitBody, bool) {
	body := submitBody{}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		s.writeBadRequest(w, r, errMalformedBody)
		return submitBody{}, false
	}
	return body, true
}

func requestToResponse(record core.RequestRecord) requestResponse {
	response := requestResponse{
		RequestID:        record.ID,
		Mode:             string(record.Mode),
		Status:           string(record.Status),
		Input:            record.Input,
		Result:           record.Result,
		ProcessingTimeMS: record.ProcessingTimeMS,
		CallbackURL:      record.CallbackURL,
		CallbackAttempts: record.CallbackAttempts,
		ErrorMessage:     record.ErrorMessage,
		CreatedAt:        record.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.CompletedAt != nil {
		response.CompletedAt = record.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return response
}

func statsToResponse(report core.StatsReport) map[string]any {
	circuitHosts := map[string]any{}
	for host, stats := range report.Circuits.Hosts {
		entry := map[string]any{
			"state":         stats.State,
			"failure_count": stats.FailureCount,
		}
		if stats.LastFailureAt != nil {
			entry["last_failure_at"] = stats.LastFailureAt.UTC().Format(time.RFC3339Nano)
		}
		circuitHosts[host] = entry
	}

	return map[string]any{
		"request_statistics": map[string]any{
			"total_requests":          report.Requests.Total,
			"sync_requests":           report.Requests.Sync,
			"async_requests":          report.Requests.Async,
			"completed":               report.Requests.Completed,
			"failed":                  report.Requests.Failed,
			"sync_avg_processing_ms":  report.Requests.SyncAvgProcessingMS,
			"async_avg_processing_ms": report.Requests.AsyncAvgProcessingMS,
		},
		"rate_limiting": map[string]any{
			"active_clients":          report.RateLimit.ActiveClients,
			"total_recent_requests":   report.RateLimit.TotalRecentRequests,
			"max_requests_per_window": report.RateLimit.MaxRequestsPerWindow,
			"window_seconds":          report.RateLimit.WindowSeconds,
		},
		"callback_service": map[string]any{
			"circuit_breakers":      circuitHosts,
			"total_hosts_tracked":   report.Circuits.TotalHostsTracked,
			"open_circuits":         report.Circuits.OpenCircuits,
			"failure_threshold":     report.Circuits.Threshold,
			"reset_timeout_seconds": report.Circuits.ResetTimeoutSeconds,
		},
		"system": map[string]any{
			"uptime_seconds": report.Uptime.Seconds(),
			"timestamp":      report.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
}
