package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// MaxListLimit bounds GET /requests regardless of the caller's ask.
const MaxListLimit = 1000

const DefaultListLimit = 100

// Service is the request ledger: it owns the lifecycle state machine and
// orchestrates the sync and async pipelines around it.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	requestStore    RequestStore
	guard           IngressGuard
	egress          EgressValidator
	dispatcher      CallbackDispatcher
	workProcessor   WorkProcessor
	now             func() time.Time
	startedAt       time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	resolver := builder.optionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	configProvider := builder.configProvider
	if configProvider == nil {
		configProvider = NewCfgxConfigProvider(nil)
	}
	loaded, err := configProvider.Load(context.Background(), DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := resolver.Resolve(DefaultConfig(), loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	now := builder.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	service := &Service{
		config:          resolved,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  configProvider,
		optionsResolver: resolver,
		requestStore:    builder.requestStore,
		guard:           builder.guard,
		egress:          builder.egress,
		dispatcher:      builder.dispatcher,
		workProcessor:   builder.workProcessor,
		now:             now,
		startedAt:       now(),
	}
	if service.metricsRecorder == nil {
		service.metricsRecorder = NopMetricsRecorder{}
	}
	if service.errorMapper == nil {
		service.errorMapper = defaultErrorMapper
	}
	return service, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// CreateRequest inserts a new pending record. The callback URL arrives
// already validated; the ledger stores it verbatim.
func (s *Service) CreateRequest(
	ctx context.Context,
	mode RequestMode,
	input map[string]any,
	callbackURL string,
) (RequestRecord, error) {
	if s == nil || s.requestStore == nil {
		return RequestRecord{}, s.mapError(fmt.Errorf("core: request store is required"))
	}
	record := RequestRecord{
		ID:          uuid.NewString(),
		Mode:        mode,
		Status:      RequestStatusPending,
		Input:       copyAnyMap(input),
		CallbackURL: strings.TrimSpace(callbackURL),
		CreatedAt:   s.now(),
	}
	created, err := s.requestStore.Create(ctx, record)
	if err != nil {
		return RequestRecord{}, s.mapError(err)
	}
	return created, nil
}

// TransitionUpdate carries the fields a status transition may write
// alongside the status itself.
type TransitionUpdate struct {
	Result           map[string]any
	ProcessingTimeMS float64
	ErrorMessage     string
	CallbackAttempts int
}

// Transition advances one record through the lifecycle graph and
// persists the result. Writers for a given id are sequential by design:
// the pipeline and the dispatcher touch a record one after the other,
// never concurrently.
func (s *Service) Transition(
	ctx context.Context,
	id string,
	status RequestStatus,
	update TransitionUpdate,
) (RequestRecord, error) {
	if s == nil || s.requestStore == nil {
		return RequestRecord{}, s.mapError(fmt.Errorf("core: request store is required"))
	}
	record, err := s.requestStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return RequestRecord{}, s.mapError(err)
	}
	if err := record.TransitionTo(status, s.now()); err != nil {
		return RequestRecord{}, s.mapError(err)
	}
	if update.Result != nil {
		record.Result = copyAnyMap(update.Result)
	}
	if update.ProcessingTimeMS > 0 {
		record.ProcessingTimeMS = update.ProcessingTimeMS
	}
	if strings.TrimSpace(update.ErrorMessage) != "" {
		record.ErrorMessage = strings.TrimSpace(update.ErrorMessage)
	}
	if update.CallbackAttempts > record.CallbackAttempts {
		record.CallbackAttempts = update.CallbackAttempts
	}
	updated, err := s.requestStore.Update(ctx, record)
	if err != nil {
		return RequestRecord{}, s.mapError(err)
	}
	return updated, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (RequestRecord, error) {
	if s == nil || s.requestStore == nil {
		return RequestRecord{}, s.mapError(fmt.Errorf("core: request store is required"))
	}
	if strings.TrimSpace(id) == "" {
		return RequestRecord{}, s.mapError(fmt.Errorf("core: request id is required"))
	}
	record, err := s.requestStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return RequestRecord{}, s.mapError(err)
	}
	return record, nil
}

func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]RequestRecord, error) {
	if s == nil || s.requestStore == nil {
		return nil, s.mapError(fmt.Errorf("core: request store is required"))
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	records, err := s.requestStore.List(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return records, nil
}

// ProcessSync runs the full synchronous pipeline: pending record, work,
// terminal transition, result to the caller.
func (s *Service) ProcessSync(ctx context.Context, req ProcessRequest) (result SyncResult, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"mode":       string(RequestModeSync),
		"complexity": req.Complexity,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "process_sync", err, fields)
	}()

	if s == nil || s.workProcessor == nil {
		err = s.mapError(fmt.Errorf("core: work processor is required"))
		return SyncResult{}, err
	}
	if req.Complexity == 0 {
		req.Complexity = 1
		fields["complexity"] = req.Complexity
	}
	if err = s.workProcessor.ValidateInput(req.Input); err != nil {
		err = s.mapError(err)
		return SyncResult{}, err
	}

	record, createErr := s.CreateRequest(ctx, RequestModeSync, req.Input, "")
	if createErr != nil {
		err = createErr
		return SyncResult{}, err
	}
	fields["request_id"] = record.ID

	if _, err = s.Transition(ctx, record.ID, RequestStatusProcessing, TransitionUpdate{}); err != nil {
		return SyncResult{}, err
	}

	work, workErr := s.workProcessor.Process(ctx, req.Input, req.Complexity)
	if workErr != nil {
		_, _ = s.Transition(ctx, record.ID, RequestStatusFailed, TransitionUpdate{
			ErrorMessage: workErr.Error(),
		})
		err = s.mapError(goerrors.Wrap(workErr, goerrors.CategoryInternal, "core: work pipeline failed").
			WithTextCode(ServiceErrorProcessingFailed))
		return SyncResult{}, err
	}

	if _, err = s.Transition(ctx, record.ID, RequestStatusCompleted, TransitionUpdate{
		Result:           work.Result,
		ProcessingTimeMS: work.ProcessingTimeMS,
	}); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		RequestID:        record.ID,
		Result:           work.Result,
		ProcessingTimeMS: work.ProcessingTimeMS,
		Timestamp:        s.now(),
	}, nil
}

// SubmitAsync validates the callback destination, records the request as
// pending, and hands the rest to a detached background task. The HTTP
// response returns before any work happens. There is no backpressure on
// task creation: every accepted request spawns its own goroutine, a
// known capacity limit of this design.
func (s *Service) SubmitAsync(ctx context.Context, req SubmitRequest) (ack AsyncAck, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"mode":       string(RequestModeAsync),
		"complexity": req.Complexity,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "submit_async", err, fields)
	}()

	if s == nil || s.workProcessor == nil || s.egress == nil {
		err = s.mapError(fmt.Errorf("core: work processor and egress validator are required"))
		return AsyncAck{}, err
	}
	if req.Complexity == 0 {
		req.Complexity = 1
		fields["complexity"] = req.Complexity
	}
	if err = s.workProcessor.ValidateInput(req.Input); err != nil {
		err = s.mapError(err)
		return AsyncAck{}, err
	}
	if err = s.egress.Validate(req.CallbackURL); err != nil {
		err = s.mapError(err)
		return AsyncAck{}, err
	}

	record, createErr := s.CreateRequest(ctx, RequestModeAsync, req.Input, req.CallbackURL)
	if createErr != nil {
		err = createErr
		return AsyncAck{}, err
	}
	fields["request_id"] = record.ID

	go s.processAsync(record.ID, req.Complexity)

	return AsyncAck{
		RequestID: record.ID,
		Status:    "accepted",
		Message:   "Request accepted for processing. Callback will be sent when complete.",
	}, nil
}

// processAsync is the detached pipeline behind SubmitAsync. It runs on a
// background context: once a request is accepted, its delivery attempts
// run to completion or circuit short-circuit with no external cancel.
func (s *Service) processAsync(id string, complexity int) {
	ctx := context.Background()
	startedAt := s.now()
	fields := map[string]any{
		"request_id": id,
		"complexity": complexity,
	}

	record, err := s.Transition(ctx, id, RequestStatusProcessing, TransitionUpdate{})
	if err != nil {
		s.logError(ctx, "async pipeline could not start", mergeFields(fields, map[string]any{"error": err.Error()}))
		return
	}

	work, workErr := s.workProcessor.Process(ctx, record.Input, complexity)
	if workErr != nil {
		_, _ = s.Transition(ctx, id, RequestStatusFailed, TransitionUpdate{
			ErrorMessage: workErr.Error(),
		})
		s.observeOperation(ctx, startedAt, "process_async", workErr, fields)
		return
	}

	record, err = s.Transition(ctx, id, RequestStatusCompleted, TransitionUpdate{
		Result:           work.Result,
		ProcessingTimeMS: work.ProcessingTimeMS,
	})
	if err != nil {
		s.observeOperation(ctx, startedAt, "process_async", err, fields)
		return
	}

	outcome := s.deliverCallback(ctx, record, work)
	fields["delivered"] = outcome.Delivered
	fields["callback_attempts"] = outcome.Attempts
	fields["circuit_open"] = outcome.CircuitOpen
	s.observeOperation(ctx, startedAt, "process_async", nil, fields)
}

func (s *Service) deliverCallback(ctx context.Context, record RequestRecord, work WorkResult) DeliveryOutcome {
	if s.dispatcher == nil {
		_, _ = s.Transition(ctx, record.ID, RequestStatusCallbackFailed, TransitionUpdate{
			ErrorMessage: "no callback dispatcher configured",
		})
		return DeliveryOutcome{}
	}

	outcome := s.dispatcher.Deliver(ctx, record.CallbackURL, CallbackPayload{
		RequestID:        record.ID,
		Result:           work.Result,
		ProcessingTimeMS: work.ProcessingTimeMS,
		Timestamp:        s.now(),
	})

	if outcome.Delivered {
		_, _ = s.Transition(ctx, record.ID, RequestStatusCallbackSent, TransitionUpdate{
			CallbackAttempts: outcome.Attempts,
		})
		return outcome
	}

	message := fmt.Sprintf("callback failed after %d attempts", outcome.Attempts)
	if outcome.CircuitOpen {
		message = "callback skipped: circuit open for destination"
	}
	_, _ = s.Transition(ctx, record.ID, RequestStatusCallbackFailed, TransitionUpdate{
		CallbackAttempts: outcome.Attempts,
		ErrorMessage:     message,
	})
	return outcome
}

// Stats assembles the monitoring surface: ledger counts, ingress guard
// snapshot, and the dispatcher's circuit table.
func (s *Service) Stats(ctx context.Context) (StatsReport, error) {
	if s == nil || s.requestStore == nil {
		return StatsReport{}, s.mapError(fmt.Errorf("core: request store is required"))
	}
	counts, err := s.requestStore.Counts(ctx)
	if err != nil {
		return StatsReport{}, s.mapError(err)
	}
	report := StatsReport{
		Requests:  counts,
		Uptime:    s.now().Sub(s.startedAt),
		Timestamp: s.now(),
	}
	if s.guard != nil {
		report.RateLimit = s.guard.Snapshot()
	}
	if s.dispatcher != nil {
		report.Circuits = s.dispatcher.Stats()
	}
	return report, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return serviceErrorMapper(err)
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return nil
	}
	return mapped
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	merged := copyAnyMap(base)
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
