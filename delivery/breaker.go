package delivery

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-relay/core"
)

// circuitBreaker tracks consecutive delivery failures per destination
// host. Once a host crosses the failure threshold its circuit opens and
// deliveries are skipped until the reset timeout elapses. The key is the
// hostname alone, so every port on a failing host shares one circuit.
type circuitBreaker struct {
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu    sync.Mutex
	hosts map[string]*circuitRecord
}

type circuitRecord struct {
	failures      int
	lastFailureAt time.Time
}

func newCircuitBreaker(threshold int, resetTimeout time.Duration, now func() time.Time) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &circuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          now,
		hosts:        map[string]*circuitRecord{},
	}
}

// open reports whether deliveries to host should be skipped. An expired
// circuit is cleared here rather than by a background sweeper.
func (b *circuitBreaker) open(host string) bool {
	if b == nil {
		return false
	}
	host = normalizeHost(host)

	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.hosts[host]
	if !ok || record.failures < b.threshold {
		return false
	}
	if b.now().UTC().Sub(record.lastFailureAt) > b.resetTimeout {
		delete(b.hosts, host)
		return false
	}
	return true
}

func (b *circuitBreaker) recordFailure(host string) {
	if b == nil {
		return
	}
	host = normalizeHost(host)

	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.hosts[host]
	if !ok {
		record = &circuitRecord{}
		b.hosts[host] = record
	}
	record.failures++
	record.lastFailureAt = b.now().UTC()
}

func (b *circuitBreaker) recordSuccess(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hosts, normalizeHost(host))
}

func (b *circuitBreaker) snapshot() core.CircuitStats {
	stats := core.CircuitStats{
		Hosts:               map[string]core.CircuitHostStats{},
		Threshold:           5,
		ResetTimeoutSeconds: 60,
	}
	if b == nil {
		return stats
	}
	stats.Threshold = b.threshold
	stats.ResetTimeoutSeconds = int(b.resetTimeout / time.Second)

	now := b.now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	for host, record := range b.hosts {
		state := "closed"
		if record.failures >= b.threshold {
			if now.Sub(record.lastFailureAt) > b.resetTimeout {
				delete(b.hosts, host)
				continue
			}
			state = "open"
			stats.OpenCircuits++
		}
		lastFailure := record.lastFailureAt
		stats.Hosts[host] = core.CircuitHostStats{
			State:         state,
			FailureCount:  record.failures,
			LastFailureAt: &lastFailure,
		}
	}
	stats.TotalHostsTracked = len(b.hosts)
	return stats
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "unknown"
	}
	return host
}
