package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type memoryRequestStore struct {
	mu         sync.Mutex
	records    map[string]RequestRecord
	lastFilter ListFilter
	counts     RequestCounts
	countsErr  error
}

func newMemoryRequestStore() *memoryRequestStore {
	return &memoryRequestStore{records: map[string]RequestRecord{}}
}

func (s *memoryRequestStore) Create(_ context.Context, record RequestRecord) (RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryRequestStore) Get(_ context.Context, id string) (RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return RequestRecord{}, fmt.Errorf("request %q not found: %w", id, ErrRequestNotFound)
	}
	return record, nil
}

func (s *memoryRequestStore) Update(_ context.Context, record RequestRecord) (RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return RequestRecord{}, fmt.Errorf("request %q not found: %w", record.ID, ErrRequestNotFound)
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *memoryRequestStore) List(_ context.Context, filter ListFilter) ([]RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	records := make([]RequestRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *memoryRequestStore) Counts(context.Context) (RequestCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countsErr != nil {
		return RequestCounts{}, s.countsErr
	}
	return s.counts, nil
}

func (s *memoryRequestStore) snapshot(id string) (RequestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	return record, ok
}

type stubWorkProcessor struct {
	mu             sync.Mutex
	validateErr    error
	processErr     error
	result         WorkResult
	lastComplexity int
	processCalls   int
}

func (p *stubWorkProcessor) ValidateInput(map[string]any) error {
	return p.validateErr
}

func (p *stubWorkProcessor) Process(_ context.Context, _ map[string]any, complexity int) (WorkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastComplexity = complexity
	p.processCalls++
	if p.processErr != nil {
		return WorkResult{}, p.processErr
	}
	return p.result, nil
}

func (p *stubWorkProcessor) complexity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastComplexity
}

type stubEgressValidator struct {
	err   error
	calls int
}

func (v *stubEgressValidator) Validate(string) error {
	v.calls++
	return v.err
}

type stubGuard struct {
	allow    bool
	snapshot RateLimitSnapshot
}

func (g *stubGuard) Allow(string) bool           { return g.allow }
func (g *stubGuard) Snapshot() RateLimitSnapshot { return g.snapshot }
func (g *stubGuard) RetryAfter() time.Duration   { return time.Minute }

type stubCallbackDispatcher struct {
	mu       sync.Mutex
	outcome  DeliveryOutcome
	payloads []CallbackPayload
	stats    CircuitStats
}

func (d *stubCallbackDispatcher) Deliver(_ context.Context, _ string, payload CallbackPayload) DeliveryOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	return d.outcome
}

func (d *stubCallbackDispatcher) Stats() CircuitStats {
	return d.stats
}

type serviceFixture struct {
	service    *Service
	store      *memoryRequestStore
	work       *stubWorkProcessor
	egress     *stubEgressValidator
	dispatcher *stubCallbackDispatcher
}

func newServiceFixture(t *testing.T, options ...Option) serviceFixture {
	t.Helper()
	store := newMemoryRequestStore()
	work := &stubWorkProcessor{result: WorkResult{
		Result:           map[string]any{"computed_value": 42.0},
		ProcessingTimeMS: 12.5,
	}}
	egress := &stubEgressValidator{}
	dispatcher := &stubCallbackDispatcher{outcome: DeliveryOutcome{Delivered: true, Attempts: 1}}

	base := []Option{
		WithRequestStore(store),
		WithWorkProcessor(work),
		WithEgressValidator(egress),
		WithCallbackDispatcher(dispatcher),
	}
	service, err := NewService(DefaultConfig(), append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return serviceFixture{
		service:    service,
		store:      store,
		work:       work,
		egress:     egress,
		dispatcher: dispatcher,
	}
}

func waitForStatus(t *testing.T, store *memoryRequestStore, id string, status RequestStatus) RequestRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		record, ok := store.snapshot(id)
		if ok && record.Status == status {
			return record
		}
		if time.Now().After(deadline) {
			t.Fatalf("record %q never reached %q, last status %q", id, status, record.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func textCodeOf(t *testing.T, err error) string {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %v", err)
	}
	return rich.TextCode
}

func TestProcessSync_CompletesAndPersists(t *testing.T) {
	fixture := newServiceFixture(t)

	result, err := fixture.service.ProcessSync(context.Background(), ProcessRequest{
		Input:      map[string]any{"name": "test"},
		Complexity: 3,
	})
	if err != nil {
		t.Fatalf("process sync: %v", err)
	}
	if result.RequestID == "" {
		t.Fatalf("expected request id assigned")
	}
	if result.ProcessingTimeMS != 12.5 {
		t.Fatalf("expected processing time threaded through, got %v", result.ProcessingTimeMS)
	}
	if fixture.work.complexity() != 3 {
		t.Fatalf("expected complexity 3 forwarded, got %d", fixture.work.complexity())
	}

	record, ok := fixture.store.snapshot(result.RequestID)
	if !ok {
		t.Fatalf("expected record persisted")
	}
	if record.Status != RequestStatusCompleted {
		t.Fatalf("expected completed record, got %q", record.Status)
	}
	if record.Mode != RequestModeSync {
		t.Fatalf("expected sync mode, got %q", record.Mode)
	}
	if record.CompletedAt == nil {
		t.Fatalf("expected completed_at stamped")
	}
	if record.Result["computed_value"] != 42.0 {
		t.Fatalf("expected work result persisted, got %v", record.Result)
	}
}

func TestProcessSync_ZeroComplexityDefaultsToOne(t *testing.T) {
	fixture := newServiceFixture(t)

	if _, err := fixture.service.ProcessSync(context.Background(), ProcessRequest{
		Input: map[string]any{"name": "test"},
	}); err != nil {
		t.Fatalf("process sync: %v", err)
	}
	if fixture.work.complexity() != 1 {
		t.Fatalf("expected default complexity 1, got %d", fixture.work.complexity())
	}
}

func TestProcessSync_ValidationFailureSkipsLedger(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.work.validateErr = goerrors.New("work: input is suspicious", goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorBadInput)

	_, err := fixture.service.ProcessSync(context.Background(), ProcessRequest{
		Input: map[string]any{"name": "test"},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code := textCodeOf(t, err); code != ServiceErrorBadInput {
		t.Fatalf("expected %q, got %q", ServiceErrorBadInput, code)
	}

	fixture.store.mu.Lock()
	stored := len(fixture.store.records)
	fixture.store.mu.Unlock()
	if stored != 0 {
		t.Fatalf("expected no record for rejected input, got %d", stored)
	}
}

func TestProcessSync_WorkFailureMarksRecordFailed(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.work.processErr = fmt.Errorf("work: processing blew up")

	_, err := fixture.service.ProcessSync(context.Background(), ProcessRequest{
		Input:      map[string]any{"name": "test"},
		Complexity: 1,
	})
	if err == nil {
		t.Fatalf("expected processing error")
	}
	if code := textCodeOf(t, err); code != ServiceErrorProcessingFailed {
		t.Fatalf("expected %q, got %q", ServiceErrorProcessingFailed, code)
	}

	fixture.store.mu.Lock()
	var record RequestRecord
	for _, r := range fixture.store.records {
		record = r
	}
	fixture.store.mu.Unlock()
	if record.Status != RequestStatusFailed {
		t.Fatalf("expected failed record, got %q", record.Status)
	}
	if !strings.Contains(record.ErrorMessage, "blew up") {
		t.Fatalf("expected failure message recorded, got %q", record.ErrorMessage)
	}
}

func TestSubmitAsync_ValidatesInputBeforeCallback(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.work.validateErr = goerrors.New("work: input is empty", goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorBadInput)
	fixture.egress.err = goerrors.New("egress: blocked", goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorInvalidCallback)

	_, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		CallbackURL: "http://127.0.0.1/steal",
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code := textCodeOf(t, err); code != ServiceErrorBadInput {
		t.Fatalf("expected input rejected first with %q, got %q", ServiceErrorBadInput, code)
	}
	if fixture.egress.calls != 0 {
		t.Fatalf("expected egress untouched when input invalid, got %d calls", fixture.egress.calls)
	}
}

func TestSubmitAsync_RejectsBlockedCallback(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.egress.err = goerrors.New("egress: callback url resolves to a blocked host", goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorInvalidCallback)

	_, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		Input:       map[string]any{"name": "test"},
		CallbackURL: "http://127.0.0.1/steal",
	})
	if err == nil {
		t.Fatalf("expected callback rejection")
	}
	if code := textCodeOf(t, err); code != ServiceErrorInvalidCallback {
		t.Fatalf("expected %q, got %q", ServiceErrorInvalidCallback, code)
	}
	if fixture.work.processCalls != 0 {
		t.Fatalf("expected no work for rejected callback")
	}
}

func TestSubmitAsync_DeliversCallbackAndRecordsAttempts(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.dispatcher.outcome = DeliveryOutcome{Delivered: true, Attempts: 2}

	ack, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		Input:       map[string]any{"name": "test"},
		Complexity:  2,
		CallbackURL: "https://hooks.example.com/cb",
	})
	if err != nil {
		t.Fatalf("submit async: %v", err)
	}
	if ack.Status != "accepted" {
		t.Fatalf("expected accepted ack, got %q", ack.Status)
	}

	record := waitForStatus(t, fixture.store, ack.RequestID, RequestStatusCallbackSent)
	if record.CallbackAttempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", record.CallbackAttempts)
	}
	if fixture.work.complexity() != 2 {
		t.Fatalf("expected complexity forwarded to background work, got %d", fixture.work.complexity())
	}

	fixture.dispatcher.mu.Lock()
	payloads := len(fixture.dispatcher.payloads)
	payload := fixture.dispatcher.payloads[0]
	fixture.dispatcher.mu.Unlock()
	if payloads != 1 {
		t.Fatalf("expected one delivery, got %d", payloads)
	}
	if payload.RequestID != ack.RequestID {
		t.Fatalf("expected payload for %q, got %q", ack.RequestID, payload.RequestID)
	}
}

func TestSubmitAsync_ExhaustedRetriesMarkCallbackFailed(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.dispatcher.outcome = DeliveryOutcome{Delivered: false, Attempts: 3}

	ack, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		Input:       map[string]any{"name": "test"},
		CallbackURL: "https://down.example.com/cb",
	})
	if err != nil {
		t.Fatalf("submit async: %v", err)
	}

	record := waitForStatus(t, fixture.store, ack.RequestID, RequestStatusCallbackFailed)
	if record.ErrorMessage != "callback failed after 3 attempts" {
		t.Fatalf("unexpected failure message %q", record.ErrorMessage)
	}
	if record.CallbackAttempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", record.CallbackAttempts)
	}
	if record.CompletedAt == nil {
		t.Fatalf("expected completed_at preserved from completion")
	}
}

func TestSubmitAsync_OpenCircuitSkipsDelivery(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.dispatcher.outcome = DeliveryOutcome{Delivered: false, Attempts: 0, CircuitOpen: true}

	ack, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		Input:       map[string]any{"name": "test"},
		CallbackURL: "https://down.example.com/cb",
	})
	if err != nil {
		t.Fatalf("submit async: %v", err)
	}

	record := waitForStatus(t, fixture.store, ack.RequestID, RequestStatusCallbackFailed)
	if record.ErrorMessage != "callback skipped: circuit open for destination" {
		t.Fatalf("unexpected failure message %q", record.ErrorMessage)
	}
	if record.CallbackAttempts != 0 {
		t.Fatalf("expected no attempts recorded, got %d", record.CallbackAttempts)
	}
}

func TestSubmitAsync_WorkFailureSkipsCallback(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.work.processErr = fmt.Errorf("work: processing blew up")

	ack, err := fixture.service.SubmitAsync(context.Background(), SubmitRequest{
		Input:       map[string]any{"name": "test"},
		CallbackURL: "https://hooks.example.com/cb",
	})
	if err != nil {
		t.Fatalf("submit async: %v", err)
	}

	record := waitForStatus(t, fixture.store, ack.RequestID, RequestStatusFailed)
	if !strings.Contains(record.ErrorMessage, "blew up") {
		t.Fatalf("expected failure message, got %q", record.ErrorMessage)
	}

	fixture.dispatcher.mu.Lock()
	payloads := len(fixture.dispatcher.payloads)
	fixture.dispatcher.mu.Unlock()
	if payloads != 0 {
		t.Fatalf("expected no delivery for failed work, got %d", payloads)
	}
}

func TestGetRequest_RequiresID(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.GetRequest(context.Background(), "  ")
	if err == nil {
		t.Fatalf("expected error for blank id")
	}
	if code := textCodeOf(t, err); code != ServiceErrorBadInput {
		t.Fatalf("expected %q, got %q", ServiceErrorBadInput, code)
	}
}

func TestGetRequest_MapsNotFound(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.GetRequest(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if code := textCodeOf(t, err); code != ServiceErrorRequestNotFound {
		t.Fatalf("expected %q, got %q", ServiceErrorRequestNotFound, code)
	}
}

func TestListRequests_ClampsLimit(t *testing.T) {
	fixture := newServiceFixture(t)

	if _, err := fixture.service.ListRequests(context.Background(), ListFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if fixture.store.lastFilter.Limit != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, fixture.store.lastFilter.Limit)
	}

	if _, err := fixture.service.ListRequests(context.Background(), ListFilter{Limit: MaxListLimit + 500}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if fixture.store.lastFilter.Limit != MaxListLimit {
		t.Fatalf("expected limit clamped to %d, got %d", MaxListLimit, fixture.store.lastFilter.Limit)
	}
}

func TestStats_AssemblesAllSections(t *testing.T) {
	guard := &stubGuard{allow: true, snapshot: RateLimitSnapshot{
		ActiveClients:        2,
		TotalRecentRequests:  7,
		MaxRequestsPerWindow: 1000,
		WindowSeconds:        60,
	}}
	fixture := newServiceFixture(t, WithIngressGuard(guard))
	fixture.store.counts = RequestCounts{Total: 5, Sync: 3, Async: 2, Completed: 4, Failed: 1}
	fixture.dispatcher.stats = CircuitStats{
		Hosts:               map[string]CircuitHostStats{"down.example.com": {State: "open", FailureCount: 5}},
		TotalHostsTracked:   1,
		OpenCircuits:        1,
		Threshold:           5,
		ResetTimeoutSeconds: 60,
	}

	report, err := fixture.service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if report.Requests.Total != 5 || report.Requests.Sync != 3 {
		t.Fatalf("unexpected request counts %+v", report.Requests)
	}
	if report.RateLimit.ActiveClients != 2 {
		t.Fatalf("expected guard snapshot, got %+v", report.RateLimit)
	}
	if report.Circuits.OpenCircuits != 1 {
		t.Fatalf("expected circuit stats, got %+v", report.Circuits)
	}
	if report.Timestamp.IsZero() {
		t.Fatalf("expected timestamp set")
	}
}

func TestNewService_RuntimeConfigOverridesDefaults(t *testing.T) {
	fixture := newServiceFixture(t)
	if fixture.service.Config().DeploymentMode() != DeploymentModePermissive {
		t.Fatalf("expected permissive default")
	}

	store := newMemoryRequestStore()
	strict, err := NewService(StrictConfig(), WithRequestStore(store))
	if err != nil {
		t.Fatalf("new strict service: %v", err)
	}
	if strict.Config().DeploymentMode() != DeploymentModeStrict {
		t.Fatalf("expected strict mode resolved, got %q", strict.Config().Mode)
	}
	if strict.Config().RateLimit.MaxRequests != 50 {
		t.Fatalf("expected strict ingress budget, got %d", strict.Config().RateLimit.MaxRequests)
	}
}
