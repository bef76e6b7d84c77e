// Package http exposes the run pipeline and library over a JSON API
// with Server-Sent Events for run progress.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/config"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/library"
	"github.com/fyrsmithlabs/ideabank/internal/logging"
	"github.com/fyrsmithlabs/ideabank/internal/run"
	"github.com/fyrsmithlabs/ideabank/internal/search"
)

// Server serves the ideabank HTTP API.
type Server struct {
	echo       *echo.Echo
	controller *run.Controller
	library    *library.Service
	registry   *Registry
	publisher  *EventPublisher
	logger     *logging.Logger
	config     config.ServerConfig
}

// NewServer creates the HTTP server. The publisher may be nil when no
// NATS mirror is configured.
func NewServer(controller *run.Controller, lib *library.Service, publisher *EventPublisher, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if controller == nil {
		return nil, fmt.Errorf("run controller is required")
	}
	if lib == nil {
		return nil, fmt.Errorf("library is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		controller: controller,
		library:    lib,
		registry:   NewRegistry(0),
		publisher:  publisher,
		logger:     logger.Named("http"),
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleStartRun)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.DELETE("/runs/:id", s.handleCancelRun)
	v1.GET("/runs/:id/events", s.handleRunEvents)
	v1.GET("/library/:type", s.handleListLibrary)
	v1.POST("/reconcile", s.handleReconcile)
}

// StartRunRequest is the request body for POST /api/v1/runs.
type StartRunRequest struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ItemType       string    `json:"itemType"`
	ItemCount      int       `json:"itemCount,omitempty"`
	DedupThreshold float64   `json:"dedupThreshold,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LibraryResponse is the response body for GET /api/v1/library/:type.
type LibraryResponse struct {
	Type  string       `json:"type"`
	Count int          `json:"count"`
	Items []*item.Item `json:"items"`
}

// ReconcileRequest is the request body for POST /api/v1/reconcile. A
// caller whose event stream dropped before a complete event submits
// the run's baseline library size and last known itemsAdded.
type ReconcileRequest struct {
	ItemType   string `json:"itemType"`
	SizeBefore int    `json:"sizeBefore"`
	ItemsAdded int    `json:"itemsAdded"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartRun(c echo.Context) error {
	var body StartRunRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req := run.Request{
		TimeWindow:     search.TimeWindow{Start: body.Start, End: body.End},
		ItemType:       item.Type(body.ItemType),
		ItemCount:      body.ItemCount,
		DedupThreshold: body.DedupThreshold,
	}
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
		req.TemperatureSet = true
	}

	// The run outlives the request; cancellation happens via DELETE.
	ctx, cancel := context.WithCancel(context.Background())
	r, events, err := s.controller.Start(ctx, req)
	if err != nil {
		cancel()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	st := s.registry.Register(r.ID, cancel)
	go s.pump(r.ID, st, events)

	return c.JSON(http.StatusAccepted, r)
}

// pump drains the controller's event channel into the run's stream
// buffer and mirrors each event to NATS.
func (s *Server) pump(id string, st *stream, events <-chan run.Event) {
	for e := range events {
		st.append(e)
		s.publisher.Publish(id, e)
	}
	s.registry.finish(id, st)
}

func (s *Server) handleGetRun(c echo.Context) error {
	r, ok := s.controller.Cache().Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleCancelRun(c echo.Context) error {
	id := c.Param("id")
	if !s.registry.Cancel(id) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleListLibrary(c echo.Context) error {
	typ, err := item.ParseType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items, err := s.library.Get(c.Request().Context(), typ)
	if err != nil {
		s.logger.Error(c.Request().Context(), "listing library", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing library failed")
	}

	return c.JSON(http.StatusOK, LibraryResponse{
		Type:  string(typ),
		Count: len(items),
		Items: items,
	})
}

func (s *Server) handleReconcile(c echo.Context) error {
	var body ReconcileRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	typ, err := item.ParseType(body.ItemType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := run.Reconcile(c.Request().Context(), s.library, typ, body.SizeBefore, body.ItemsAdded)
	if err != nil {
		s.logger.Error(c.Request().Context(), "reconciliation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "reconciliation failed")
	}
	return c.JSON(http.StatusOK, rec)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
