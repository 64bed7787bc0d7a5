package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/draftbench/livebuild/internal/api/http"
	"github.com/draftbench/livebuild/internal/api/middleware"
	"github.com/draftbench/livebuild/internal/api/ws"
	"github.com/draftbench/livebuild/internal/compiler"
	"github.com/draftbench/livebuild/internal/domain/build"
	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/domain/session"
	"github.com/draftbench/livebuild/internal/domain/watch"
	"github.com/draftbench/livebuild/internal/domain/workspace"
	"github.com/draftbench/livebuild/internal/infrastructure/config"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
)

// Server wraps the HTTP server and all orchestration components.
type Server struct {
	router    *gin.Engine
	sessions  *session.Manager
	scheduler *build.Scheduler
	orch      *build.Orchestrator
	hub       *watch.Hub
	notifier  *event.Notifier
	wsMutex   *workspace.Mutex
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics

	sweepStop chan struct{}
}

// NewServer creates a fully wired server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		// A bad LOG_LEVEL must not keep the server down.
		logger = logging.NewDefault()
		logger.Warn("Invalid log level, falling back to info",
			zap.String("level", cfg.Logging.Level),
			zap.Error(err),
		)
	}

	logger.Info("Initializing livebuild server",
		zap.String("port", cfg.Server.Port),
		zap.String("sessions_root", cfg.Sessions.Root),
		zap.Strings("platforms", cfg.Build.Platforms),
		zap.Duration("debounce", cfg.Build.Debounce),
	)

	metrics := monitoring.NewMetrics()

	notifier := event.NewNotifier(logger)
	notifier.OnDrop(func() { metrics.WSEventsDropped.Inc() })

	sessions := session.NewManager(cfg.Sessions.Root, cfg.Sessions.TemplateDir, logger).
		WithMetrics(metrics)

	orch := build.NewOrchestrator(
		sessions,
		compiler.NewWeb(cfg.Build.WebBin),
		compiler.NewMobile(cfg.Build.MobileBin),
		notifier,
		build.Options{
			Platforms:      cfg.Build.Platforms,
			Entry:          cfg.Build.Entry,
			Minify:         cfg.Build.Minify,
			CompileTimeout: cfg.Build.CompileLimit,
			HistorySize:    cfg.Build.HistorySize,
		},
		logger,
	).WithMetrics(metrics)

	// Removal is refused while the orchestrator reports a build in flight.
	sessions.WithBuildTracker(orch)

	scheduler := build.NewScheduler(cfg.Build.Debounce, func(sessionID, triggerFile string) {
		if err := orch.ExecuteRebuild(context.Background(), sessionID, triggerFile); err != nil {
			logger.Warn("Scheduled rebuild failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}, logger).WithMetrics(metrics)

	hub := watch.NewHub(scheduler, notifier, sessions, logger).WithMetrics(metrics)

	wsMutex := workspace.NewMutex(cfg.Mutex.WaitTimeout, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(sessions, orch, scheduler, hub, wsMutex, logger)
	wsHandler := ws.NewHandler(notifier, logger).WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Session lifecycle
	router.POST("/sessions", handlers.CreateSession)
	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.DELETE("/sessions/:id", handlers.DeleteSession)

	// Rebuild control
	router.POST("/sessions/:id/rebuild", handlers.TriggerRebuild)
	router.GET("/sessions/:id/builds", handlers.SessionBuilds)
	router.GET("/rebuild/status", handlers.RebuildStatus)

	// Bundle preview
	router.GET("/sessions/:id/dist/*filepath", handlers.ServeDist)

	// Event stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &Server{
		router:    router,
		sessions:  sessions,
		scheduler: scheduler,
		orch:      orch,
		hub:       hub,
		notifier:  notifier,
		wsMutex:   wsMutex,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}

	if cfg.Sessions.TTL > 0 {
		srv.sweepStop = make(chan struct{})
		go srv.sweepLoop()
	}

	logger.Info("Server initialized successfully")
	return srv, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close shuts down watchers, pending timers, and the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	s.scheduler.Stop()
	s.hub.StopAll()

	s.logger.Sync()
	return nil
}

// sweepLoop prunes sessions idle past the configured TTL.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.config.Sessions.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.sweepStop:
			return
		}
	}
}

func (s *Server) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Mutex.WaitTimeout)
	defer cancel()

	release, err := s.wsMutex.Acquire(ctx)
	if err != nil {
		s.logger.Warn("Sweep skipped, workspace lock unavailable", zap.Error(err))
		return
	}
	defer release()

	for _, sid := range s.sessions.Sweep(ctx, s.config.Sessions.TTL) {
		s.hub.Stop(sid)
		s.scheduler.Cancel(sid)
		s.orch.ForgetHistory(sid)
		s.logger.Info("Expired idle session", zap.String("session_id", sid))
	}
}
