package core

import (
	"fmt"
	"strings"
	"time"
)

type DeploymentMode string

const (
	DeploymentModeStrict     DeploymentMode = "strict"
	DeploymentModePermissive DeploymentMode = "permissive"
)

type RateLimitConfig struct {
	MaxRequests   int `koanf:"max_requests" mapstructure:"max_requests"`
	WindowSeconds int `koanf:"window_seconds" mapstructure:"window_seconds"`
}

type CallbackConfig struct {
	MaxRetries            int `koanf:"max_retries" mapstructure:"max_retries"`
	BaseDelayMS           int `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	CircuitThreshold      int `koanf:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSeconds   int `koanf:"circuit_reset_seconds" mapstructure:"circuit_reset_seconds"`
	MaxConnectionsPerHost int `koanf:"max_connections_per_host" mapstructure:"max_connections_per_host"`
	TotalTimeoutSeconds   int `koanf:"total_timeout_seconds" mapstructure:"total_timeout_seconds"`
	ConnectTimeoutSeconds int `koanf:"connect_timeout_seconds" mapstructure:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int `koanf:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
}

// Config is resolved once at startup and threaded through constructors.
// The deployment mode selects egress strictness and ingress thresholds;
// nothing reads it ad hoc at call time.
type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Mode        string          `koanf:"mode" mapstructure:"mode"`
	RateLimit   RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Callback    CallbackConfig  `koanf:"callback" mapstructure:"callback"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "relay",
		Mode:        string(DeploymentModePermissive),
		RateLimit: RateLimitConfig{
			MaxRequests:   1000,
			WindowSeconds: 60,
		},
		Callback: CallbackConfig{
			MaxRetries:            3,
			BaseDelayMS:           1000,
			CircuitThreshold:      5,
			CircuitResetSeconds:   60,
			MaxConnectionsPerHost: 10,
			TotalTimeoutSeconds:   10,
			ConnectTimeoutSeconds: 3,
			ReadTimeoutSeconds:    5,
		},
	}
}

// StrictConfig returns the production profile: tight ingress budget and
// the full egress blocklist.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = string(DeploymentModeStrict)
	cfg.RateLimit.MaxRequests = 50
	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	mode := strings.TrimSpace(strings.ToLower(c.Mode))
	if mode != string(DeploymentModeStrict) && mode != string(DeploymentModePermissive) {
		return fmt.Errorf("core: mode must be %q or %q, got %q", DeploymentModeStrict, DeploymentModePermissive, c.Mode)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("core: rate_limit.max_requests must be positive")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("core: rate_limit.window_seconds must be positive")
	}
	if c.Callback.MaxRetries <= 0 {
		return fmt.Errorf("core: callback.max_retries must be positive")
	}
	if c.Callback.CircuitThreshold <= 0 {
		return fmt.Errorf("core: callback.circuit_threshold must be positive")
	}
	return nil
}

func (c Config) DeploymentMode() DeploymentMode {
	if strings.TrimSpace(strings.ToLower(c.Mode)) == string(DeploymentModeStrict) {
		return DeploymentModeStrict
	}
	return DeploymentModePermissive
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
