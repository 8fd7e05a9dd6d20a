package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/existflow/collabtask/internal/config"
	"github.com/existflow/collabtask/internal/db"
	"github.com/existflow/collabtask/internal/hub"
	"github.com/existflow/collabtask/internal/logger"
	"github.com/existflow/collabtask/internal/mutation"
	"github.com/existflow/collabtask/internal/presence"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the collaboration server
type Server struct {
	db        *db.DB
	hub       *hub.Hub
	presence  *presence.Registry
	mutations *mutation.Service
	echo      *echo.Echo
	upgrader  websocket.Upgrader

	bufferSize int
	origins    []string

	// socket-initiated mutations still running
	inflight sync.WaitGroup
	mu       sync.Mutex
	closing  bool
}

// New opens the database named in cfg and creates a server
func New(cfg *config.Config) (*Server, error) {
	database, err := db.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	logger.Info("Database ready", logger.F("driver", database.Driver()))
	return NewWithDB(database, cfg), nil
}

// NewWithDB creates a server on an open database
func NewWithDB(database *db.DB, cfg *config.Config) *Server {
	h := hub.New()
	s := &Server{
		db:         database,
		hub:        h,
		presence:   presence.NewRegistry(h),
		mutations:  mutation.NewService(database, h),
		bufferSize: cfg.SendBufferSize,
		origins:    cfg.CORSOrigins,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			logger.Debug("HTTP Request",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("remote", req.RemoteAddr))

			err := next(c)

			res := c.Response()
			logger.Info("HTTP Response",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("status", res.Status),
				logger.F("size", res.Size),
				logger.F("duration", time.Since(start).String()))

			return err
		}
	})

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, HeaderConnectionID},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleSocket)

	api := e.Group("/api")
	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PUT("/tasks/:id", s.handleUpdateTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
	api.GET("/users", s.handleListUsers)

	s.echo = e
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.origins, "*") {
		return true
	}
	return slices.Contains(s.origins, origin)
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	logger.Info("Server listening", logger.F("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests, closes live sockets, waits for
// in-flight writes and releases the database
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.echo.Shutdown(ctx)
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Shutdown with mutations still running")
	}

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// beginMutation registers a socket mutation with Shutdown. It reports false
// once Shutdown has started.
func (s *Server) beginMutation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Close releases the presence registry and the database
func (s *Server) Close() error {
	s.presence.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": "down",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.Len(),
	})
}
