package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kalelend/gateway/middleware"
	"kalelend/rpc/modules"
)

// Rate limiter keys for the two route groups.
const (
	RateLimitReads  = "reads"
	RateLimitWrites = "writes"
)

type Config struct {
	Module         *modules.KaleLendModule
	HealthHandler  http.Handler
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// Tracing wraps the router in otelhttp.
	Tracing bool
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Module == nil {
		return nil, fmt.Errorf("routes: kalelend module required")
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Method(http.MethodGet, "/healthz", health)
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	kr := newKaleLendRoutes(cfg.Module, cfg.Logger, cfg.RequestTimeout)
	r.Route("/v1", func(sr chi.Router) {
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware())
		}
		sr.Group(func(g chi.Router) {
			if cfg.RateLimiter != nil {
				g.Use(cfg.RateLimiter.Middleware(RateLimitReads))
			}
			kr.mountReads(g)
		})
		sr.Group(func(g chi.Router) {
			if cfg.RateLimiter != nil {
				g.Use(cfg.RateLimiter.Middleware(RateLimitWrites))
			}
			kr.mountWrites(g)
		})
	})

	if !cfg.Tracing {
		return r, nil
	}
	return otelhttp.NewHandler(r, "kalelend-api"), nil
}
