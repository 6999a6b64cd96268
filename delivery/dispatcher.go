// Package delivery pushes completion callbacks to caller-supplied
// destinations with bounded retries, exponential backoff, and a per-host
// circuit breaker.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-relay/core"
)

const userAgent = "go-relay/1.0"

// HTTPDoer is the outbound HTTP seam. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
	Threshold    int
	ResetTimeout time.Duration
	// MaxPerHost caps concurrent in-flight deliveries to one host.
	MaxPerHost     int
	TotalTimeout   time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	Client HTTPDoer
	Logger glog.Logger
	Now    func() time.Time
	// Sleep is the backoff wait, injectable so tests run without real
	// delays. It must honor context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a random duration in [JitterMin, JitterMax].
	Jitter func() time.Duration
}

// Dispatcher delivers callback payloads. Each destination host gets its
// own connection budget and circuit; hosts do not interfere with each
// other.
type Dispatcher struct {
	maxRetries int
	baseDelay  time.Duration
	maxPerHost int

	client  HTTPDoer
	breaker *circuitBreaker
	logger  glog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() time.Duration

	mu        sync.Mutex
	hostSlots map[string]chan struct{}
}

func New(cfg Config) *Dispatcher {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxPerHost := cfg.MaxPerHost
	if maxPerHost <= 0 {
		maxPerHost = 10
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitterMin := cfg.JitterMin
		if jitterMin <= 0 {
			jitterMin = 100 * time.Millisecond
		}
		jitterMax := cfg.JitterMax
		if jitterMax < jitterMin {
			jitterMax = 300 * time.Millisecond
		}
		jitter = uniformJitter(jitterMin, jitterMax)
	}
	client := cfg.Client
	if client == nil {
		client = newHTTPClient(cfg)
	}
	return &Dispatcher{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxPerHost: maxPerHost,
		client:     client,
		breaker:    newCircuitBreaker(cfg.Threshold, cfg.ResetTimeout, now),
		logger:     glog.Ensure(cfg.Logger),
		now:        now,
		sleep:      sleep,
		jitter:     jitter,
		hostSlots:  map[string]chan struct{}{},
	}
}

// FromConfig builds a dispatcher from the resolved deployment configuration.
func FromConfig(cfg core.Config, logger glog.Logger) *Dispatcher {
	callback := cfg.Callback
	return New(Config{
		MaxRetries:     callback.MaxRetries,
		BaseDelay:      time.Duration(callback.BaseDelayMS) * time.Millisecond,
		Threshold:      callback.CircuitThreshold,
		ResetTimeout:   time.Duration(callback.CircuitResetSeconds) * time.Second,
		MaxPerHost:     callback.MaxConnectionsPerHost,
		TotalTimeout:   time.Duration(callback.TotalTimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(callback.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(callback.ReadTimeoutSeconds) * time.Second,
		Logger:         logger,
	})
}

// Deliver attempts the callback until it lands or the retry budget runs
// out. An open circuit short-circuits before the first attempt; attempt
// outcomes feed back into the breaker either way.
func (d *Dispatcher) Deliver(ctx context.Context, rawURL string, payload core.CallbackPayload) core.DeliveryOutcome {
	if d == nil {
		return core.DeliveryOutcome{}
	}
	host := hostOf(rawURL)

	if d.breaker.open(host) {
		d.logger.Info("callback skipped, circuit open",
			"host", host,
			"request_id", payload.RequestID,
		)
		return core.DeliveryOutcome{CircuitOpen: true}
	}

	release := d.acquireHostSlot(host)
	defer release()

	outcome := core.DeliveryOutcome{}
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := d.baseDelay*(1<<uint(attempt-1)) + d.jitter()
			if err := d.sleep(ctx, delay); err != nil {
				break
			}
		}
		outcome.Attempts = attempt + 1

		err := d.send(ctx, rawURL, payload, attempt)
		if err == nil {
			d.breaker.recordSuccess(host)
			outcome.Delivered = true
			d.logger.Info("callback delivered",
				"host", host,
				"request_id", payload.RequestID,
				"attempts", outcome.Attempts,
			)
			return outcome
		}

		d.logger.Error("callback attempt failed",
			"host", host,
			"request_id", payload.RequestID,
			"attempt", attempt+1,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	// The breaker counts exhausted deliveries, not individual attempts:
	// one whole retry budget spent is one failure against the host.
	d.breaker.recordFailure(host)
	return outcome
}

// Stats returns the current circuit view for the stats endpoint.
func (d *Dispatcher) Stats() core.CircuitStats {
	if d == nil {
		return core.CircuitStats{Hosts: map[string]core.CircuitHostStats{}}
	}
	return d.breaker.snapshot()
}

func (d *Dispatcher) send(ctx context.Context, rawURL string, payload core.CallbackPayload, attempt int) error {
	body, err := encodePayload(payload, attempt, d.maxRetries, d.now().UTC())
	if err != nil {
		return fmt.Errorf("delivery: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: post callback: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("delivery: callback returned status %d", res.StatusCode)
	}
	return nil
}

// acquireHostSlot blocks until the host has a free connection slot and
// returns the release func.
func (d *Dispatcher) acquireHostSlot(host string) func() {
	d.mu.Lock()
	slots, ok := d.hostSlots[host]
	if !ok {
		slots = make(chan struct{}, d.maxPerHost)
		d.hostSlots[host] = slots
	}
	d.mu.Unlock()

	slots <- struct{}{}
	return func() { <-slots }
}

func encodePayload(payload core.CallbackPayload, attempt int, maxRetries int, sentAt time.Time) ([]byte, error) {
	body := map[string]any{
		"request_id":         payload.RequestID,
		"result":             payload.Result,
		"processing_time_ms": payload.ProcessingTimeMS,
		"timestamp":          payload.Timestamp.UTC().Format(time.RFC3339Nano),
		"callback_metadata": map[string]any{
			"attempt":      attempt + 1,
			"max_attempts": maxRetries,
			"sent_at":      sentAt.Format(time.RFC3339Nano),
		},
	}
	return json.Marshal(body)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "unknown"
	}
	return normalizeHost(parsed.Hostname())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformJitter(min time.Duration, max time.Duration) func() time.Duration {
	spread := max - min
	return func() time.Duration {
		if spread <= 0 {
			return min
		}
		return min + time.Duration(rand.Int63n(int64(spread)+1))
	}
}

func newHTTPClient(cfg Config) *http.Client {
	totalTimeout := cfg.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = 10 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 3 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	maxPerHost := cfg.MaxPerHost
	if maxPerHost <= 0 {
		maxPerHost = 10
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: totalTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: readTimeout,
			MaxConnsPerHost:       maxPerHost,
			MaxIdleConnsPerHost:   maxPerHost,
		},
	}
}

var _ core.CallbackDispatcher = (*Dispatcher)(nil)
