// Package api serves the read-only consumer status API.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/killclip/internal/api/middleware"
	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/processor"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HandoffStatus reads the handoff state. *handoff.Channel implements it.
type HandoffStatus interface {
	Status(ctx context.Context) (handoff.Status, error)
}

// QueueStats reports upload queue statistics. *jobqueue.JobQueue implements it.
type QueueStats interface {
	GetStats() jobqueue.Stats
}

// BusyReporter reports whether a session is being processed. *handoff.Poller implements it.
type BusyReporter interface {
	Busy() bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHandoff exposes the handoff state.
func WithHandoff(h HandoffStatus) ServerOption {
	return func(s *Server) { s.handoff = h }
}

// WithPoller exposes whether a session is in flight.
func WithPoller(p BusyReporter) ServerOption {
	return func(s *Server) { s.poller = p }
}

// WithQueue exposes the upload queue statistics.
func WithQueue(q QueueStats) ServerOption {
	return func(s *Server) { s.queue = q }
}

// WithReports exposes recent session reports.
func WithReports(r *processor.ReportStore) ServerOption {
	return func(s *Server) { s.reports = r }
}

// WithDetection sets the active detection config shown by the presets endpoint.
func WithDetection(name string, dc conf.DetectionConfig) ServerOption {
	return func(s *Server) {
		s.activePreset = name
		s.active = dc.Clone()
	}
}

// WithOutputDir reports disk usage of the clip output directory.
func WithOutputDir(dir string) ServerOption {
	return func(s *Server) { s.outputDir = dir }
}

// Server is the status API HTTP server.
type Server struct {
	echo    *echo.Echo
	listen  string
	node    string
	started time.Time

	handoff      HandoffStatus
	poller       BusyReporter
	queue        QueueStats
	reports      *processor.ReportStore
	activePreset string
	active       conf.DetectionConfig
	outputDir    string
}

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New builds the server for settings. It fails when the API is disabled.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	if !settings.API.Enabled {
		return nil, errors.Newf("status api not enabled in settings").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.API.Listen == "" {
		return nil, errors.Newf("status api listen address is empty").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		listen:  settings.API.Listen,
		node:    settings.Main.Name,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(mw.NewRequestLogger(GetLogger(), func(c echo.Context) bool {
		return c.Path() == "/health"
	}))
	e.HTTPErrorHandler = s.errorHandler
	s.echo = e
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.echo.GET("/health", s.HealthCheck)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.GetStatus)
	v1.GET("/presets", s.GetPresets)
	v1.GET("/sessions", s.GetSessions)
	v1.GET("/sessions/:id", s.GetSession)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.listen).
			Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("status api starting", logger.String("address", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("status api shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	GetLogger().Info("status api stopped")
	return nil
}
