package httpapi

import (
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-relay/ratelimit"
)

// rateLimitMiddleware throttles by client IP. The RealIP middleware runs
// earlier in the chain, so RemoteAddr already reflects forwarded
// headers.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.guard == nil {
			next.ServeHTTP(w, r)
			return
		}
		clientID := clientIP(r)
		if !s.guard.Allow(clientID) {
			s.logger.Info("request throttled",
				"client_id", clientID,
				"path", r.URL.Path,
			)
			s.writeThrottled(w, ratelimit.ThrottledError{
				ClientID:   clientID,
				RetryAfter: s.guard.RetryAfter(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) == 0 {
		return false
	}
	if slices.Contains(s.origins, "*") {
		return true
	}
	return slices.Contains(s.origins, origin)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	return seconds
}
