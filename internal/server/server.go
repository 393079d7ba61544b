// Package server exposes the derivative checker over HTTP.
//
//	GET  /health            liveness check
//	POST /api/ping          echo two uploaded images as LaTeX
//	POST /api/check         verify a typed function/derivative pair
//	POST /api/check-images  transcribe two images, then verify them
//	GET  /metrics           Prometheus exposition
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

	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/internal/config"
	"github.com/njchilds90/derivtutor/internal/observability"
	"github.com/njchilds90/derivtutor/transcribe"
	"github.com/njchilds90/derivtutor/verify"
)

// Options wires a Server. Only Config is required; Verifier defaults to one
// built from Config.Equivalence, Registry to a fresh registry and Logger to
// slog.Default(). A nil Transcriber disables /api/check-images.
type Options struct {
	Config      config.Config
	Verifier    *verify.Verifier
	Transcriber transcribe.Transcriber
	Registry    *prometheus.Registry
	Logger      *slog.Logger
}

type Server struct {
	cfg         config.Config
	verifier    *verify.Verifier
	transcriber transcribe.Transcriber
	metrics     *observability.Metrics
	registry    *prometheus.Registry
	logger      *slog.Logger
	limiter     *clientLimiter
	router      *gin.Engine
}

// New builds the router and registers metrics.
func New(opts Options) *Server {
	s := &Server{
		cfg:         opts.Config,
		verifier:    opts.Verifier,
		transcriber: opts.Transcriber,
		registry:    opts.Registry,
		logger:      opts.Logger,
	}
	if s.verifier == nil {
		s.verifier = NewVerifier(opts.Config.Equivalence)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.metrics = observability.NewMetrics(s.registry)
	if rl := opts.Config.Server.RateLimit; rl.RPS > 0 {
		s.limiter = newClientLimiter(rl.RPS, rl.Burst)
	}
	s.router = s.routes()
	return s
}

// NewVerifier builds a verifier whose probe set is the default set plus the
// configured extra probes.
func NewVerifier(cfg config.EquivalenceConfig) *verify.Verifier {
	probes := append(equiv.DefaultProbes(), cfg.ExtraProbes...)
	return verify.New(equiv.New(equiv.Options{Probes: probes}))
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(securityHeaders(s.cfg.Server.FrameAncestors))
	r.Use(otelgin.Middleware(observability.ServiceName))
	r.Use(requestLogger(s.logger))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(bodyLimit(s.cfg.Server.MaxBodyBytes))
	if s.limiter != nil {
		api.Use(s.rateLimit())
	}
	api.POST("/ping", s.handlePing)
	api.POST("/check", s.handleCheck)
	api.POST("/check-images", s.handleCheckImages)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("derivtutor listening", "addr", srv.Addr, "vision", s.transcriber != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
