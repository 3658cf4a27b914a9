package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Alias1177/Forecaster/models"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StatusProvider reports the retraining state of every timeframe
type StatusProvider interface {
	Statuses() []models.TimeframeStatus
}

// Server exposes health, metrics and model status
type Server struct {
	echo   *echo.Echo
	addr   string
	logger zerolog.Logger
}

// New wires the ops routes. gatherer is the registry the recorder writes to.
func New(addr string, gatherer prometheus.Gatherer, status StatusProvider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		addr:   addr,
		logger: log.With().Str("component", "ops_server").Logger(),
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogging())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"timeframes": status.Statuses(),
		})
	})

	return s
}

func (s *Server) requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.logger.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Dur("took", time.Since(start)).
				Msg("Request")
			return err
		}
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("Ops server listening")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	return nil
}
