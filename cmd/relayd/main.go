// relayd runs the relay HTTP service over a sqlite-backed ledger. All
// runtime settings come from the environment; unset values fall back to
// the permissive development profile.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	relay "github.com/goliatone/go-relay"
	"github.com/goliatone/go-relay/core"
	"github.com/goliatone/go-relay/delivery"
	"github.com/goliatone/go-relay/egress"
	"github.com/goliatone/go-relay/httpapi"
	relaymigrations "github.com/goliatone/go-relay/migrations"
	"github.com/goliatone/go-relay/ratelimit"
	sqlstore "github.com/goliatone/go-relay/store/sql"
	"github.com/goliatone/go-relay/work"
	_ "github.com/mattn/go-sqlite3"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func main() {
	_, logger := glog.Resolve("relayd", nil, nil)
	logger = glog.Ensure(logger)

	if err := run(logger); err != nil {
		logger.Error("relayd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger glog.Logger) error {
	resolved, err := resolveRuntimeConfig(context.Background(), configFromEnv())
	if err != nil {
		return err
	}

	client, cleanup, err := openDatabase(getenv("RELAY_DB", "file:relay.db?_foreign_keys=on"))
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := sqlstore.NewRequestStore(client.DB())
	if err != nil {
		return err
	}

	service, guard, err := buildService(resolved, store, logger)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(httpapi.Config{
		Service:        service,
		Guard:          guard,
		Logger:         logger,
		AllowedOrigins: splitList(os.Getenv("RELAY_ALLOWED_ORIGINS")),
	})

	port := getenv("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relayd listening",
			"addr", srv.Addr,
			"mode", string(resolved.DeploymentMode()),
			"version", httpapi.Version,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("relayd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveRuntimeConfig merges the env override layer with the
// deployment defaults up front, so every component is built from the
// same resolved configuration.
func resolveRuntimeConfig(ctx context.Context, runtime core.Config) (core.Config, error) {
	loaded, err := core.NewCfgxConfigProvider(nil).Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(core.DefaultConfig(), loaded, runtime)
}

// buildService wires the relay service. The returned guard is the same
// instance the service snapshots for /stats, so the HTTP middleware
// must throttle with it rather than a second limiter.
func buildService(cfg core.Config, store core.RequestStore, logger glog.Logger) (*core.Service, *ratelimit.Window, error) {
	guard := ratelimit.FromConfig(cfg)
	service, err := core.NewService(cfg,
		core.WithLogger(logger),
		core.WithRequestStore(store),
		core.WithIngressGuard(guard),
		core.WithEgressValidator(egress.FromConfig(cfg)),
		core.WithCallbackDispatcher(delivery.FromConfig(cfg, logger)),
		core.WithWorkProcessor(work.New(work.Config{})),
	)
	if err != nil {
		return nil, nil, err
	}
	return service, guard, nil
}

// configFromEnv builds the runtime override layer. Everything not set
// here resolves from the deployment defaults.
func configFromEnv() core.Config {
	cfg := core.Config{}
	if strings.EqualFold(getenv("RELAY_MODE", ""), string(core.DeploymentModeStrict)) {
		cfg = core.StrictConfig()
	}
	cfg.Mode = getenv("RELAY_MODE", cfg.Mode)
	cfg.ServiceName = getenv("RELAY_SERVICE_NAME", cfg.ServiceName)
	cfg.RateLimit.MaxRequests = getenvInt("RELAY_RATE_LIMIT_MAX", cfg.RateLimit.MaxRequests)
	cfg.RateLimit.WindowSeconds = getenvInt("RELAY_RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimit.WindowSeconds)
	cfg.Callback.MaxRetries = getenvInt("RELAY_CALLBACK_MAX_RETRIES", cfg.Callback.MaxRetries)
	cfg.Callback.CircuitThreshold = getenvInt("RELAY_CALLBACK_CIRCUIT_THRESHOLD", cfg.Callback.CircuitThreshold)
	cfg.Callback.CircuitResetSeconds = getenvInt("RELAY_CALLBACK_CIRCUIT_RESET_SECONDS", cfg.Callback.CircuitResetSeconds)
	return cfg
}

func openDatabase(dsn string) (*persistence.Client, func(), error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(persistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("new persistence client: %w", err)
	}

	ctx := context.Background()
	_, err = relaymigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != relaymigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, relaymigrations.WithValidationTargets(relaymigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

type persistenceConfig struct {
	dsn string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return "sqlite3" }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return relay.ModuleName }

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
