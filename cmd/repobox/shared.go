package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jkaninda/repobox/internal/config"
	"github.com/jkaninda/repobox/internal/observability"
	"github.com/jkaninda/repobox/internal/runtime"
	"github.com/jkaninda/repobox/internal/sandbox"
	"github.com/jkaninda/repobox/internal/storage"
	pgstore "github.com/jkaninda/repobox/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/repobox/internal/storage/sqlite"
)

// SharedComponents holds everything both the serve and mcp commands need.
type SharedComponents struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Store   storage.Store // nil = event journal disabled.
	Runtime *runtime.Client
	Manager *sandbox.Manager

	cleanups []func()
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// Cleanup runs registered cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

// buildLogger creates the slog logger from config. "pretty" is for humans at
// a terminal; "json" (the default) is for log pipelines.
func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// initShared wires the components shared by the serve and mcp commands:
// observability, the event journal, the docker client, and the sandbox manager.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	// Event journal (optional; SQLite default, PostgreSQL for production).
	var journal sandbox.Journal
	if cfg.Storage != nil {
		store, err := initStore(cfg, logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		sc.Store = store
		sc.addCleanup(func() {
			if err := store.Close(); err != nil {
				logger.Error("closing store", slog.String("error", err.Error()))
			}
		})

		if err := store.Migrate(context.Background()); err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		journal = store.Events()
		logger.Debug("event journal initialized", slog.String("driver", store.Driver()))
	}

	// Docker runtime. The daemon must be reachable at startup.
	rt := runtime.NewClient(logger)
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Ping(pingCtx); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	sc.Runtime = rt

	// Sandbox lifecycle metrics share the HTTP metrics registry.
	var metrics *sandbox.Metrics
	if obs != nil && obs.Metrics != nil {
		metrics = sandbox.NewMetrics(obs.Metrics.Registry)
	}

	sc.Manager = sandbox.NewManager(rt, sandbox.Config{
		Image:          cfg.Sandbox.Image,
		WorkingDir:     cfg.Sandbox.WorkingDir,
		ExecTimeout:    cfg.Sandbox.ExecTimeout(),
		MaxExecTimeout: cfg.Sandbox.MaxExecTimeout(),
		SweepInterval:  cfg.Sandbox.SweepInterval(),
		MaxFileSize:    cfg.Sandbox.MaxFileSizeBytes,
	}, journal, metrics, logger)

	// Readiness checks.
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("docker", rt.Ping)
		if sc.Store != nil {
			obs.Health.AddCheck("storage", sc.Store.Ping)
		}
	}

	return sc, nil
}

// reapOrphans removes managed containers left behind by a previous process.
func reapOrphans(rt *runtime.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	names, err := rt.List(ctx)
	if err != nil {
		logger.Warn("listing managed containers", slog.String("error", err.Error()))
		return
	}
	for _, name := range names {
		if err := rt.Remove(ctx, name); err != nil {
			logger.Warn("removing orphaned container",
				slog.String("container", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("removed orphaned container", slog.String("container", name))
	}
}

// initStore opens the configured event journal backend.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.StorageDriver() {
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		if pg == nil {
			return nil, fmt.Errorf("postgres driver selected but no postgres config")
		}
		return pgstore.Open(pgstore.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
		}, logger)

	case storage.DriverSQLite:
		var sq config.SQLiteStorageConfig
		if cfg.Storage.SQLite != nil {
			sq = *cfg.Storage.SQLite
		}
		return sqlitestore.Open(sqlitestore.Config{
			Path:        sq.DatabasePath(),
			JournalMode: sq.JournalMode,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
