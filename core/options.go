package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
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
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRequestStore(store RequestStore) Option {
	return func(b *serviceBuilder) {
		b.requestStore = store
	}
}

func WithIngressGuard(guard IngressGuard) Option {
	return func(b *serviceBuilder) {
		b.guard = guard
	}
}

func WithEgressValidator(validator EgressValidator) Option {
	return func(b *serviceBuilder) {
		b.egress = validator
	}
}

func WithCallbackDispatcher(dispatcher CallbackDispatcher) Option {
	return func(b *serviceBuilder) {
		b.dispatcher = dispatcher
	}
}

func WithWorkProcessor(processor WorkProcessor) Option {
	return func(b *serviceBuilder) {
		b.workProcessor = processor
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("relay", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Mode) != "" {
		layer["mode"] = cfg.Mode
	}

	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.MaxRequests != 0 {
		rateLimit["max_requests"] = cfg.RateLimit.MaxRequests
	}
	if includeZero || cfg.RateLimit.WindowSeconds != 0 {
		rateLimit["window_seconds"] = cfg.RateLimit.WindowSeconds
	}
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	callback := map[string]any{}
	if includeZero || cfg.Callback.MaxRetries != 0 {
		callback["max_retries"] = cfg.Callback.MaxRetries
	}
	if includeZero || cfg.Callback.BaseDelayMS != 0 {
		callback["base_delay_ms"] = cfg.Callback.BaseDelayMS
	}
	if includeZero || cfg.Callback.CircuitThreshold != 0 {
		callback["circuit_threshold"] = cfg.Callback.CircuitThreshold
	}
	if includeZero || cfg.Callback.CircuitResetSeconds != 0 {
		callback["circuit_reset_seconds"] = cfg.Callback.CircuitResetSeconds
	}
	if includeZero || cfg.Callback.MaxConnectionsPerHost != 0 {
		callback["max_connections_per_host"] = cfg.Callback.MaxConnectionsPerHost
	}
	if includeZero || cfg.Callback.TotalTimeoutSeconds != 0 {
		callback["total_timeout_seconds"] = cfg.Callback.TotalTimeoutSeconds
	}
	if includeZero || cfg.Callback.ConnectTimeoutSeconds != 0 {
		callback["connect_timeout_seconds"] = cfg.Callback.ConnectTimeoutSeconds
	}
	if includeZero || cfg.Callback.ReadTimeoutSeconds != 0 {
		callback["read_timeout_seconds"] = cfg.Callback.ReadTimeoutSeconds
	}
	if len(callback) > 0 {
		layer["callback"] = callback
	}

	return layer
}
