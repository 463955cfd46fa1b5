package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ppiankov/surveylens/internal/compare"
	"github.com/ppiankov/surveylens/internal/pipeline"
)

// Engine runs comparisons; *compare.Engine satisfies it
type Engine interface {
	compare.Runner
	NarrativeEnabled() bool
}

// Options configures a Server
type Options struct {
	SessionTTL time.Duration

	// Tracing wraps every request in an otelgin span named after ServiceName
	Tracing     bool
	ServiceName string

	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Server exposes comparisons over HTTP for chart front-ends
type Server struct {
	engine   Engine
	renderer *pipeline.Renderer
	sessions *sessions
	metrics  *metrics
	registry *prometheus.Registry
	logger   *slog.Logger
	router   *gin.Engine
}

// New creates a server and its routes
func New(engine Engine, renderer *pipeline.Renderer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "surveylens"
	}

	s := &Server{
		engine:   engine,
		renderer: renderer,
		sessions: newSessions(engine, opts.SessionTTL),
		registry: opts.Registry,
		logger:   opts.Logger,
	}
	s.metrics = newMetrics(opts.Registry, s.sessions.count)
	s.router = s.setupRouter(opts)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter(opts Options) *gin.Engine {
	router := gin.New()

	// OTel span first so recovery and logging see the trace context
	if opts.Tracing {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "narrative": s.engine.NarrativeEnabled()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.POST("/compare", s.compare)
		api.GET("/pivot", s.pivot)
		api.GET("/tally", s.tally)
	}

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.sessions.close()
		return err
	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.sessions.close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
