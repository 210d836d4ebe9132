// Package server assembles the terminal service: sandbox runtime, session
// registry, idle reaper, and the HTTP and WebSocket surfaces.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/sandterm/sandterm/internal/api/http"
	"github.com/sandterm/sandterm/internal/api/middleware"
	"github.com/sandterm/sandterm/internal/api/ws"
	"github.com/sandterm/sandterm/internal/infrastructure/config"
	"github.com/sandterm/sandterm/internal/infrastructure/logging"
	"github.com/sandterm/sandterm/internal/infrastructure/monitoring"
	"github.com/sandterm/sandterm/internal/sandbox"
	"github.com/sandterm/sandterm/internal/session"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *session.Registry
	reaper   *session.Reaper
	httpSrv  *http.Server
}

// New wires the service together from configuration. The runtime argument is
// optional; when nil, the local PTY runtime is used.
func New(cfg *config.Config, log *logging.Logger, runtime sandbox.Runtime) (*Server, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if runtime == nil {
		runtime = sandbox.NewLocalRuntime()
	}

	promReg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(promReg)

	registry := session.NewRegistry(session.Config{
		Runtime:     runtime,
		Spec:        specFromConfig(cfg.Sandbox),
		DefaultCols: cfg.Session.DefaultCols,
		DefaultRows: cfg.Session.DefaultRows,
		Logger:      log,
		Metrics:     metrics,
	})
	reaper := session.NewReaper(registry, cfg.Session.SweepInterval, cfg.Session.IdleTimeout, log, metrics)

	handlers := apihttp.NewHandlers(registry, cfg.Session.IdleTimeout)
	wsHandler := ws.NewHandler(registry, log, metrics)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	router.POST("/sessions", handlers.CreateSession)
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.POST("/sessions/:id/resize", handlers.ResizeSession)
	router.DELETE("/sessions/:id", handlers.TerminateSession)

	router.GET("/sessions/:id/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		reaper:   reaper,
		httpSrv: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
	}, nil
}

// Run starts the reaper and serves until the listener fails or Close is
// called.
func (s *Server) Run() error {
	s.reaper.Start()
	s.log.Info("terminal service listening",
		zap.String("addr", s.httpSrv.Addr),
		zap.Duration("idle_timeout", s.cfg.Session.IdleTimeout),
	)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close drains the HTTP server, stops the reaper, and terminates every
// remaining session.
func (s *Server) Close(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.reaper.Stop()
	s.registry.Shutdown(ctx)
	s.log.Sync()
	return err
}

func specFromConfig(cfg config.SandboxConfig) sandbox.Spec {
	spec := sandbox.DefaultSpec()
	if cfg.Image != "" {
		spec.Image = cfg.Image
	}
	if cfg.MemoryMB > 0 {
		spec.MemoryBytes = cfg.MemoryMB << 20
	}
	if cfg.MemorySwapMB > 0 {
		spec.MemorySwapBytes = cfg.MemorySwapMB << 20
	}
	if cfg.CPUShares > 0 {
		spec.CPUShares = cfg.CPUShares
	}
	if cfg.PidsLimit > 0 {
		spec.PidsLimit = cfg.PidsLimit
	}
	if cfg.Shell != "" {
		spec.Shell = cfg.Shell
	}
	if sandbox.Profile(cfg.Profile) == sandbox.ProfilePrivileged {
		spec.Profile = sandbox.ProfilePrivileged
	}
	return spec
}
