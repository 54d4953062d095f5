// Package httpapi provides the HTTP control surface for workflowd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowd/internal/store"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// Server exposes the engine over HTTP.
type Server struct {
	echo   *echo.Echo
	engine *orchestrator.Engine
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(engine *orchestrator.Engine, logger *zap.Logger, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9790,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		engine: engine,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleSubmit)
	v1.GET("/tasks", s.handleList)
	v1.GET("/tasks/:id", s.handleStatus)
	v1.POST("/tasks/:id/result", s.handleResult)
	v1.POST("/tasks/:id/mode", s.handleMode)
	v1.POST("/tasks/:id/abort", s.handleAbort)
}

// SubmitTaskRequest is the request body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Description   string `json:"description"`
	ScopeEstimate int    `json:"scope_estimate"`
	Mode          string `json:"mode,omitempty"`
	Dimension     string `json:"dimension,omitempty"`
	Hold          bool   `json:"hold,omitempty"`
}

// ModeRequest is the request body for POST /api/v1/tasks/:id/mode.
type ModeRequest struct {
	Mode      string `json:"mode"`
	Dimension string `json:"dimension,omitempty"`
}

// AbortRequest is the request body for POST /api/v1/tasks/:id/abort.
type AbortRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ListTasksResponse is the response body for GET /api/v1/tasks.
type ListTasksResponse struct {
	Tasks []*workflow.Task `json:"tasks"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req SubmitTaskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Description == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "description field is required")
	}

	task, err := s.engine.SubmitTask(c.Request().Context(), &orchestrator.SubmitRequest{
		Description:   req.Description,
		ScopeEstimate: req.ScopeEstimate,
		Mode:          workflow.ExecutionMode(req.Mode),
		Dimension:     workflow.FocusDimension(req.Dimension),
		Hold:          req.Hold,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (s *Server) handleList(c echo.Context) error {
	tasks, err := s.engine.ListTasks(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ListTasksResponse{Tasks: tasks})
}

func (s *Server) handleStatus(c echo.Context) error {
	task, err := s.engine.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleResult(c echo.Context) error {
	var result workflow.PhaseResult
	if err := c.Bind(&result); err != nil {
		s.logger.Warn("invalid phase result", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if result.Phase == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phase field is required")
	}

	task, err := s.engine.ReportPhase(c.Request().Context(), c.Param("id"), result)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleMode(c echo.Context) error {
	var req ModeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.engine.ForceMode(c.Request().Context(), c.Param("id"),
		workflow.ExecutionMode(req.Mode), workflow.FocusDimension(req.Dimension))
	if err != nil {
		return s.mapError(err)
	}

	task, err := s.engine.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleAbort(c echo.Context) error {
	var req AbortRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.engine.AbortTask(c.Request().Context(), c.Param("id"), req.Reason); err != nil {
		return s.mapError(err)
	}

	task, err := s.engine.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// mapError translates engine errors into HTTP status codes. The engine
// error text is surfaced as-is; it never contains task content.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrConcurrentTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrArchivedTaskImmutable),
		errors.Is(err, workflow.ErrPhaseMismatch),
		errors.Is(err, workflow.ErrAlreadyStarted),
		errors.Is(err, workflow.ErrTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrInvalidMode),
		errors.Is(err, workflow.ErrInvalidLevel),
		errors.Is(err, workflow.ErrClassification):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("unhandled engine error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
