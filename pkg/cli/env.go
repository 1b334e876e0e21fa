package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/platinummonkey/rbacabac/pkg/async"
	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/audit"
	"github.com/platinummonkey/rbacabac/pkg/authz"
	"github.com/platinummonkey/rbacabac/pkg/config"
	"github.com/platinummonkey/rbacabac/pkg/observability"
	"github.com/platinummonkey/rbacabac/pkg/policy"
)

const auditFlushTimeout = 5 * time.Second

// Env carries the dependencies commands use to reach the outside world
type Env struct {
	Out    io.Writer
	Logger *logrus.Logger

	// OpenCache connects to the attribute cache
	OpenCache func(ctx context.Context, cfg attributes.RedisConfig) (*redis.Client, error)
	// OpenRoleSource connects to the identity provider database
	OpenRoleSource func(cfg config.RoleSourceConfig) (*sql.DB, error)
}

// DefaultEnv writes to stdout, logs to stderr and connects to real backends
func DefaultEnv() *Env {
	return &Env{
		Out:            os.Stdout,
		Logger:         observability.NewLogger(logrus.WarnLevel, os.Stderr),
		OpenCache:      attributes.NewRedisClient,
		OpenRoleSource: openPostgres,
	}
}

func openPostgres(cfg config.RoleSourceConfig) (*sql.DB, error) {
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("role source URL is required (RBACABAC_ROLE_SOURCE_URL)")
	}
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open role source: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

// loadConfig reads --config when given, otherwise the environment
func (e *Env) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path, _ := fs.GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}
	e.Logger.SetLevel(observability.ParseLogLevel(cfg.Observability.LogLevel))
	return cfg, nil
}

// openStore builds an attribute store. The role source is only opened when withSource is set.
func (e *Env) openStore(ctx context.Context, cfg *config.Config, withSource bool) (*attributes.Store, func(), error) {
	client, err := e.OpenCache(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	var (
		source attributes.Source = attributes.SourceFunc(func(context.Context, string, string) (*attributes.RawAttributes, error) {
			return nil, fmt.Errorf("no role source configured")
		})
		db *sql.DB
	)
	if withSource {
		db, err = e.OpenRoleSource(cfg.RoleSource)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		source = attributes.NewSQLSource(db)
	}

	loader := attributes.NewLoader(source,
		attributes.WithLoadTimeout(cfg.Loader.Timeout),
		attributes.WithLoaderLogger(e.Logger),
	)
	store := attributes.NewStore(client, loader, cfg.Cache, attributes.WithStoreLogger(e.Logger))

	cleanup := func() {
		store.Close()
		if db != nil {
			db.Close()
		}
	}
	return store, cleanup, nil
}

// evaluator builds an evaluator over the built-in policies, recording decisions as
// configured. The returned func flushes and closes the audit sinks.
func (e *Env) evaluator(cfg *config.Config) (*authz.Evaluator, func(), error) {
	reg := policy.NewRegistry(policy.WithRegistryLogger(e.Logger))
	if err := policy.RegisterDefaults(reg); err != nil {
		return nil, nil, err
	}

	opts := []authz.Option{authz.WithLogger(e.Logger)}
	if !cfg.Audit.Enabled {
		return authz.NewEvaluator(reg, opts...), func() {}, nil
	}

	logSink := audit.NewLogrusSink(e.Logger)
	logSink.DenyOnly = cfg.Audit.DenyOnly
	sinks := []audit.Sink{logSink}
	if cfg.Audit.File.BasePath != "" {
		fileSink, err := audit.NewFileSink(cfg.Audit.File)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileSink)
	}
	sink := audit.NewMultiSink(sinks...)

	evaluator := authz.NewEvaluator(reg, append(opts,
		authz.WithAuditSink(sink),
		authz.WithAuditDispatcher(async.NewDispatcher(e.Logger, cfg.Audit.MaxInFlight, auditFlushTimeout)),
	)...)

	closeAudit := func() {
		if err := evaluator.Close(auditFlushTimeout); err != nil {
			e.Logger.WithError(err).Warn("audit records still pending at exit")
		}
		if err := sink.Close(); err != nil {
			e.Logger.WithError(err).Warn("failed to close audit sinks")
		}
	}
	return evaluator, closeAudit, nil
}

// resolveService returns --service, falling back to the configured service name
func resolveService(fs *pflag.FlagSet, cfg *config.Config) (string, error) {
	service, _ := fs.GetString("service")
	if service == "" {
		service = cfg.ServiceName
	}
	if service == "" {
		return "", fmt.Errorf("--service is required (or set RBACABAC_SERVICE_NAME)")
	}
	return service, nil
}

func (e *Env) printJSON(v any) error {
	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
