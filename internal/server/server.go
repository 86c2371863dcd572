// Package server exposes the orchestration core's decision and admission
// surface over HTTP, plus a websocket bridge for hub notifications.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conductor/internal/hub"
	"conductor/internal/logging"
	"conductor/internal/schedule"
	"conductor/internal/task"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	EnableCORS   bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wires the HTTP surface over the task service, scheduler, and hub.
type Server struct {
	tasks     *task.Service
	schedules *schedule.Scheduler
	hub       *hub.Hub
	logger    logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	wsUpgrader websocket.Upgrader

	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]struct{}
}

// New builds the server and registers all routes.
func New(cfg Config, tasks *task.Service, schedules *schedule.Scheduler, notifier *hub.Hub, logger logging.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}

	s := &Server{
		tasks:     tasks,
		schedules: schedules,
		hub:       notifier,
		logger:    logging.OrNop(logger),
		engine:    engine,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		wsConns: make(map[*websocket.Conn]struct{}),
	}
	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     engine,
		ReadTimeout: readTimeout,
		// No write timeout: websocket connections are long-lived.
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)

	tasks := api.Group("/tasks")
	{
		tasks.POST("", s.handleCreateTask)
		tasks.GET("", s.handleListTasks)
		tasks.GET("/:id", s.handleGetTask)
		tasks.DELETE("/:id", s.handleDeleteTask)
		tasks.PATCH("/:id/status", s.handleSetTaskStatus)
		tasks.POST("/:id/comments", s.handleAddComment)
		tasks.POST("/:id/approval", s.handleApprovalDecision)
	}

	schedules := api.Group("/schedules")
	{
		schedules.POST("", s.handleCreateSchedule)
		schedules.GET("", s.handleListSchedules)
		schedules.GET("/:id", s.handleGetSchedule)
		schedules.PATCH("/:id/status", s.handleSetScheduleStatus)
		schedules.DELETE("/:id", s.handleDeleteSchedule)
	}

	api.GET("/topics/:topic/ws", s.handleTopicSocket)
}

// Start serves until the listener fails or Stop is called. The caller is
// responsible for running queue recovery and starting the scheduler before
// calling Start, so no orphaned task stays undispatched while requests flow.
func (s *Server) Start() error {
	s.logger.Info("Server: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down gracefully and closes websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.wsMu.Lock()
	for conn := range s.wsConns {
		_ = conn.Close()
	}
	s.wsConns = make(map[*websocket.Conn]struct{})
	s.wsMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the gin engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"queue_depth": s.tasks.QueueDepth(),
		"timestamp":   time.Now().UTC(),
	})
}
