// Package server exposes the job API: submit a date, poll a job,
// request a cooperative stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"photomigrate/internal/queue"
)

// Enqueuer submits date jobs.
type Enqueuer interface {
	EnqueueDate(ctx context.Context, date string) (string, error)
}

// StatusReader resolves job ids.
type StatusReader interface {
	Status(ctx context.Context, id string) (queue.JobStatus, error)
}

// Stopper raises the cooperative stop flag for a date.
type Stopper interface {
	RequestStop(ctx context.Context, date string) error
}

// Server is the HTTP job API.
type Server struct {
	echo   *echo.Echo
	client Enqueuer
	status StatusReader
	flags  Stopper
	logger *zap.Logger
}

// New builds the job API routes.
func New(client Enqueuer, status StatusReader, flags Stopper, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		client: client,
		status: status,
		flags:  flags,
		logger: logger,
	}

	e.GET("/health", s.health)
	e.POST("/jobs/:date", s.submitJob)
	e.GET("/jobs/:id", s.jobStatus)
	e.POST("/jobs/:date/stop", s.stopJob)

	return s
}

// Start blocks serving the API on the given port.
func (s *Server) Start(port int) error {
	return s.echo.Start(fmt.Sprintf(":%d", port))
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submitJob(c echo.Context) error {
	date := c.Param("date")
	if !queue.ValidDate(date) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date),
		})
	}

	id, err := s.client.EnqueueDate(c.Request().Context(), date)
	if err != nil {
		s.logger.Error("failed to enqueue date job", zap.String("date", date), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
	}

	s.logger.Info("date job enqueued", zap.String("date", date), zap.String("job_id", id))
	return c.JSON(http.StatusCreated, map[string]string{"id": id, "date": date})
}

func (s *Server) jobStatus(c echo.Context) error {
	id := c.Param("id")

	status, err := s.status.Status(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}
		s.logger.Error("failed to read job status", zap.String("job_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read job status"})
	}

	return c.JSON(http.StatusOK, status)
}

func (s *Server) stopJob(c echo.Context) error {
	date := c.Param("date")
	if !queue.ValidDate(date) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date),
		})
	}

	if err := s.flags.RequestStop(c.Request().Context(), date); err != nil {
		s.logger.Error("failed to set stop flag", zap.String("date", date), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to request stop"})
	}

	s.logger.Info("stop requested", zap.String("date", date))
	return c.JSON(http.StatusAccepted, map[string]string{"date": date, "status": "stop requested"})
}
