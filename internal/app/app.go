package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"finset/internal/config"
	apierrors "finset/internal/errors"
	"finset/internal/infrastructure"
	customMiddleware "finset/internal/middleware"
	"finset/internal/pipeline"
	handlers "finset/internal/transport/http"
	"finset/pkg/contracts"
)

// Application represents the report server container
type Application struct {
	Config  *config.Config
	Paths   *config.Paths
	Router  *chi.Mux
	Server  *http.Server
	Logger  *slog.Logger
	Metrics *infrastructure.Metrics
	OTel    *infrastructure.OTelProviders

	errorHandler *apierrors.ErrorHandler
	listener     net.Listener
	serveErr     chan error
}

// NewApplication builds the report server over an initialized pipeline so
// the server exposes the same registry and data layout a run writes to
func NewApplication(p *pipeline.Pipeline) (*Application, error) {
	if p == nil || p.Config == nil || p.Paths == nil {
		return nil, fmt.Errorf("report server needs an initialized pipeline")
	}
	logger := p.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	a := &Application{
		Config:       p.Config,
		Paths:        p.Paths,
		Logger:       logger.With(slog.String("component", "report_server")),
		Metrics:      p.Metrics,
		OTel:         p.OTel,
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
	if a.Metrics == nil {
		a.Metrics = infrastructure.NewMetrics(p.Config.Metrics.Namespace)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()
	r.Use(customMiddleware.RequestID)

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.Metrics))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.Tracing(a.OTel))
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Metrics(a.Metrics))
		r.Use(customMiddleware.Recoverer(a.errorHandler))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/healthz", handlers.NewHealthHandler(a.Paths, a.Logger).HealthCheck)
		r.Route("/api/v1", func(r chi.Router) {
			r.Mount("/runs", handlers.NewRunsHandler(a.Paths, a.errorHandler, a.Logger).Routes())
			r.Mount("/audit", handlers.NewAuditHandler(a.Paths, a.errorHandler, a.Logger).Routes())
		})
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Addr returns the bound address once Start has succeeded
func (a *Application) Addr() string {
	if a.listener == nil {
		return a.Server.Addr
	}
	return a.listener.Addr().String()
}

// Start binds the listener and serves in the background
func (a *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln
	a.serveErr = make(chan error, 1)

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.Logger.InfoContext(ctx, "server_started",
		slog.String("address", a.Addr()),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("version", contracts.Version))
	return nil
}

// Stop drains in-flight requests within the configured shutdown timeout
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	a.Logger.InfoContext(ctx, "server_stopped")
	return nil
}

// Run serves until ctx is cancelled, an interrupt arrives or the server fails
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "shutdown_requested")
	case err, ok := <-a.serveErr:
		if ok {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	if err := a.Stop(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}
