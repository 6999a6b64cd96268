package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-relay/core"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]core.RequestRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]core.RequestRecord{}}
}

func (s *memoryStore) Create(_ context.Context, record core.RequestRecord) (core.RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (core.RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.RequestRecord{}, fmt.Errorf("request %q not found: %w", id, core.ErrRequestNotFound)
	}
	return record, nil
}

func (s *memoryStore) Update(_ context.Context, record core.RequestRecord) (core.RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryStore) List(context.Context, core.ListFilter) ([]core.RequestRecord, error) {
	return nil, nil
}

func (s *memoryStore) Counts(context.Context) (core.RequestCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.RequestCounts{Total: len(s.records)}, nil
}

func TestResolveRuntimeConfig_AppliesOverrides(t *testing.T) {
	resolved, err := resolveRuntimeConfig(context.Background(), core.Config{})
	if err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if resolved.DeploymentMode() != core.DeploymentModePermissive {
		t.Fatalf("expected permissive default, got %q", resolved.Mode)
	}
	if resolved.RateLimit.MaxRequests != 1000 {
		t.Fatalf("expected default budget 1000, got %d", resolved.RateLimit.MaxRequests)
	}

	resolved, err = resolveRuntimeConfig(context.Background(), core.StrictConfig())
	if err != nil {
		t.Fatalf("resolve strict: %v", err)
	}
	if resolved.DeploymentMode() != core.DeploymentModeStrict {
		t.Fatalf("expected strict mode resolved, got %q", resolved.Mode)
	}
	if resolved.RateLimit.MaxRequests != 50 {
		t.Fatalf("expected strict budget 50, got %d", resolved.RateLimit.MaxRequests)
	}
}

func TestBuildService_SharesGuardWithStatsSnapshot(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), core.Config{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	service, guard, err := buildService(cfg, newMemoryStore(), nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	// Traffic admitted by the middleware guard must show up in the
	// service stats snapshot, so both sides share one limiter.
	guard.Allow("client-1")
	guard.Allow("client-1")
	guard.Allow("client-2")

	report, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if report.RateLimit.ActiveClients != 2 {
		t.Fatalf("expected 2 active clients in snapshot, got %d", report.RateLimit.ActiveClients)
	}
	if report.RateLimit.TotalRecentRequests != 3 {
		t.Fatalf("expected 3 recent requests in snapshot, got %d", report.RateLimit.TotalRecentRequests)
	}
	if report.RateLimit.MaxRequestsPerWindow != cfg.RateLimit.MaxRequests {
		t.Fatalf("expected configured budget %d, got %d", cfg.RateLimit.MaxRequests, report.RateLimit.MaxRequestsPerWindow)
	}
}
