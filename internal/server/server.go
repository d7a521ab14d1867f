// Package server exposes persisted planning sessions over a read-only HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/metrics"
	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// DefaultAddr is the listen address of `planify serve`.
const DefaultAddr = ":8088"

// SessionReader is the read side of a session store.
type SessionReader interface {
	Load(ctx context.Context, id string) (*session.Session, error)
	Summaries(ctx context.Context) ([]session.Summary, error)
}

var _ SessionReader = (*session.FileStore)(nil)

// Config holds HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server serves session listings, session documents and Prometheus metrics.
type Server struct {
	echo    *echo.Echo
	store   SessionReader
	metrics *metrics.Metrics
	logger  *logging.Logger
	config  *Config
}

// NewServer creates a server reading from store. m may be nil, in which case
// /metrics is not registered.
func NewServer(store SessionReader, m *metrics.Metrics, logger *logging.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).Middleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:    e,
		store:   store,
		metrics: m,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/sessions", s.handleListSessions)
	s.echo.GET("/sessions/:id", s.handleGetSession)
	s.echo.GET("/sessions/:id/plan", s.handleGetPlan)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ListResponse is the response body for GET /sessions.
type ListResponse struct {
	Sessions []session.Summary `json:"sessions"`
	Total    int               `json:"total"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListSessions(c echo.Context) error {
	summaries, err := s.store.Summaries(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "listing sessions failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list sessions")
	}
	return c.JSON(http.StatusOK, ListResponse{Sessions: summaries, Total: len(summaries)})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// handleGetPlan renders the session as the markdown plan document.
func (s *Server) handleGetPlan(c echo.Context) error {
	sess, err := s.load(c)
	if err != nil {
		return err
	}
	if sess.FinalPlan == nil {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("session is %s and has no final plan", sess.Status))
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(plan.Markdown(sess.Document())))
}

// load maps store errors to HTTP errors.
func (s *Server) load(c echo.Context) (*session.Session, error) {
	ctx := c.Request().Context()
	id := c.Param("id")

	sess, err := s.store.Load(ctx, id)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, session.ErrInvalidID):
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	case errors.Is(err, session.ErrSessionNotFound):
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	default:
		s.logger.Error(ctx, "loading session failed", zap.String("session", id), zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "cannot load session")
	}
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "starting http server", zap.String("addr", ln.Addr().String()))
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "shutting down http server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}
