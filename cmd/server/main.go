package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/janisto/hello-bench/internal/http/health"
	"github.com/janisto/hello-bench/internal/http/v1/routes"
	"github.com/janisto/hello-bench/internal/platform/config"
	applog "github.com/janisto/hello-bench/internal/platform/logging"
	"github.com/janisto/hello-bench/internal/platform/metrics"
	appmiddleware "github.com/janisto/hello-bench/internal/platform/middleware"
	"github.com/janisto/hello-bench/internal/platform/respond"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const docsPath = "/docs"

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(ctx, "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(ctx, "logger init error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		applog.LogError(ctx, "invalid configuration", err)
		return 1
	}
	if err := applog.SetLevel(cfg.LogLevel); err != nil {
		applog.LogError(ctx, "invalid configuration", err)
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg, prometheus.NewRegistry()),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		applog.LogError(ctx, "listen failed", err, zap.String("addr", srv.Addr))
		return 1
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.LogInfo(ctx, "server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("version", Version),
	)
	if err := serve(sigCtx, srv, ln, cfg.ShutdownTimeout); err != nil {
		applog.LogError(ctx, "server error", err, zap.String("addr", srv.Addr))
		return 1
	}
	applog.LogInfo(ctx, "server exited")
	return 0
}

// serve runs srv on ln until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		applog.LogInfo(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

// newRouter builds the full HTTP surface: probes, metrics and the versioned
// API under routes.Prefix.
func newRouter(cfg *config.Config, reg *prometheus.Registry) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	stack := []func(http.Handler) http.Handler{
		appmiddleware.Security(routes.Prefix + docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Real-IP / X-Forwarded-For. Only run behind a trusted proxy.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1 << 20), // 1 MB limit
		applog.RequestLogger(),
		applog.AccessLogger("/health", "/metrics"),
	}
	if cfg.MetricsEnabled {
		stack = append(stack, metrics.New(reg).Middleware())
	}
	stack = append(stack,
		appmiddleware.Throttle(cfg.RateLimitRPS, cfg.RateLimitBurst),
		respond.Recoverer(),
	)
	router.Use(stack...)

	router.Get("/health", health.Handler)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler(reg))
	}

	router.Route(routes.Prefix, func(r chi.Router) {
		hcfg := huma.DefaultConfig("Hello Bench API", Version)
		hcfg.Servers = []*huma.Server{{URL: routes.Prefix}}
		hcfg.DocsPath = docsPath
		if !cfg.DocsEnabled {
			hcfg.DocsPath = ""
			hcfg.OpenAPIPath = ""
			hcfg.SchemasPath = ""
		}
		routes.Register(humachi.New(r, hcfg))
	})

	return router
}
