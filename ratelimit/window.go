package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

// Window is a sliding-window admission guard keyed by client identity.
// It counts events inside a trailing interval rather than a fixed-reset
// bucket, so enforcement stays smooth across window boundaries. State is
// in-memory only: losing it on restart is acceptable for an
// abuse-mitigation heuristic.
type Window struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

type Config struct {
	MaxRequests int
	Window      time.Duration
	Now         func() time.Time
}

func New(cfg Config) *Window {
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Window{
		maxRequests: maxRequests,
		window:      window,
		now:         now,
		clients:     map[string][]time.Time{},
	}
}

// FromConfig builds a guard from the resolved deployment configuration.
func FromConfig(cfg core.Config) *Window {
	return New(Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimitWindow(),
	})
}

// Allow reports whether one more request from clientID fits inside the
// current window, recording it when it does. Entries older than the
// window are pruned lazily on each call.
func (w *Window) Allow(clientID string) bool {
	if w == nil {
		return true
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "unknown"
	}

	now := w.now().UTC()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	recent := pruneBefore(w.clients[clientID], cutoff)
	if len(recent) >= w.maxRequests {
		w.clients[clientID] = recent
		return false
	}
	w.clients[clientID] = append(recent, now)
	return true
}

// Snapshot returns the observability view: per-client recent counts
// folded into totals, plus the configured limits.
func (w *Window) Snapshot() core.RateLimitSnapshot {
	if w == nil {
		return core.RateLimitSnapshot{}
	}
	now := w.now().UTC()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := core.RateLimitSnapshot{
		MaxRequestsPerWindow: w.maxRequests,
		WindowSeconds:        int(w.window / time.Second),
	}
	for clientID, stamps := range w.clients {
		recent := pruneBefore(stamps, cutoff)
		if len(recent) == 0 {
			delete(w.clients, clientID)
			continue
		}
		w.clients[clientID] = recent
		snapshot.ActiveClients++
		snapshot.TotalRecentRequests += len(recent)
	}
	return snapshot
}

// RetryAfter is the hint surfaced to throttled callers.
func (w *Window) RetryAfter() time.Duration {
	if w == nil {
		return 0
	}
	return w.window
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[idx:]...)
}

type ThrottledError struct {
	ClientID   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: client %q throttled for %s", strings.TrimSpace(e.ClientID), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"client_id": strings.TrimSpace(e.ClientID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after"] = int(e.RetryAfter / time.Second)
	}
	return goerrors.New("Rate limit exceeded", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ServiceErrorRateLimited).
		WithMetadata(metadata)
}

var _ core.IngressGuard = (*Window)(nil)
