package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kalelend/config"
	"kalelend/core"
	"kalelend/gateway/middleware"
	"kalelend/gateway/routes"
	nativecommon "kalelend/native/common"
	"kalelend/native/kalelend"
	"kalelend/observability/metrics"
	telemetry "kalelend/observability/otel"
	"kalelend/oracle"
	"kalelend/rpc/modules"
	"kalelend/storage"
)

// app bundles the long-lived resources of the daemon.
type app struct {
	db      storage.Database
	prices  *oracle.Source
	node    *core.Node
	module  *modules.KaleLendModule
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*app, error) {
	db, err := openDatabase(cfg.StorageEngine, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	a.prices, err = oracle.Build(cfg.Oracle.Source(), now())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build oracle: %w", err)
	}

	pauses := nativecommon.NewPauseSet()
	pauses.Set(kalelend.ModuleName(), cfg.Paused)

	m := metrics.KaleLend()
	a.node, err = core.NewNode(db, a.prices.Oracle, cfg.AllowMigrate,
		core.WithClock(now),
		core.WithLogger(logger.With(slog.String("component", "core"))),
		core.WithAssets(cfg.Platform.KaleAsset, cfg.Platform.XLMAsset),
		core.WithPauses(pauses),
		core.WithMetrics(m),
		core.WithTracer(telemetry.Tracer()),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open node: %w", err)
	}
	if err := bootstrap(ctx, a.node, cfg.Platform, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.module = modules.NewKaleLendModule(a.node, a.prices, m)
	var limiter *middleware.RateLimiter
	if limits := cfg.RateLimit.Limits(routes.RateLimitReads, routes.RateLimitWrites); limits != nil {
		limiter = middleware.NewRateLimiter(limits, logger)
	}
	a.handler, err = routes.New(routes.Config{
		Module:         a.module,
		HealthHandler:  a.healthHandler(),
		Authenticator:  middleware.NewAuthenticator(cfg.Auth.Middleware(), logger),
		RateLimiter:    limiter,
		Observability:  middleware.NewObservability(cfg.Telemetry.Observability(), logger),
		CORS:           cfg.CORS.Middleware(),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
		Tracing:        cfg.Telemetry.Traces,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	return a, nil
}

// openDatabase selects the storage backend. LevelDB without a data directory
// runs in memory.
func openDatabase(engine, dataDir string) (storage.Database, error) {
	if engine == "bolt" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(dataDir, "kalelend.bolt"), nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt database: %w", err)
		}
		return db, nil
	}
	if engine == "memory" || strings.TrimSpace(dataDir) == "" {
		db, err := storage.NewMemLevelDB()
		if err != nil {
			return nil, fmt.Errorf("open in-memory database: %w", err)
		}
		return db, nil
	}
	db, err := storage.NewLevelDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dataDir, err)
	}
	return db, nil
}

// bootstrap initializes the platform from configuration on first start.
func bootstrap(ctx context.Context, node *core.Node, platform config.PlatformConfig, logger *slog.Logger) error {
	if !platform.Bootstrap {
		return nil
	}
	params, err := platform.InitParams()
	if err != nil {
		return err
	}
	err = node.WithEngine(ctx, "initialize", func(engine *kalelend.Engine) error {
		return engine.Initialize(params)
	})
	switch {
	case err == nil:
		logger.Info("platform initialized from configuration", slog.String("admin", params.Admin.String()))
		return nil
	case errors.Is(err, kalelend.ErrAlreadyInitialized):
		return nil
	default:
		return fmt.Errorf("bootstrap platform: %w", err)
	}
}

func (a *app) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if a.module.Paused() {
			status = "paused"
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(status))
	})
}

func (a *app) Close() {
	if a.prices != nil {
		_ = a.prices.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
