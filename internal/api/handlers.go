package api

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/jobqueue"
	"github.com/tphakala/killclip/internal/logger"
	"github.com/tphakala/killclip/internal/processor"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// PendingSession describes the record waiting in the handoff.
type PendingSession struct {
	SessionURL  string    `json:"sessionUrl"`
	Kills       int       `json:"kills"`
	PublishedAt time.Time `json:"publishedAt"`
}

// HandoffState is the handoff part of the status response.
type HandoffState struct {
	State     string          `json:"state"`
	Watermark float64         `json:"watermark"`
	Corrupt   bool            `json:"corrupt"`
	Pending   *PendingSession `json:"pending,omitempty"`
}

// DiskInfo is the usage of the filesystem holding the clip output directory.
type DiskInfo struct {
	Path      string  `json:"path"`
	Total     uint64  `json:"total"`
	Free      uint64  `json:"free"`
	UsagePerc float64 `json:"usagePerc"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Node       string            `json:"node"`
	Uptime     string            `json:"uptime"`
	Processing bool              `json:"processing"`
	Handoff    *HandoffState     `json:"handoff,omitempty"`
	Uploads    *jobqueue.Stats   `json:"uploads,omitempty"`
	LastReport *processor.Report `json:"lastReport,omitempty"`
	OutputDisk *DiskInfo         `json:"outputDisk,omitempty"`
}

// PresetsResponse is returned by GET /api/v1/presets.
type PresetsResponse struct {
	Active  string                          `json:"active"`
	Config  conf.DetectionConfig            `json:"config"`
	Presets map[string]conf.DetectionConfig `json:"presets"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GetStatus handles GET /api/v1/status.
func (s *Server) GetStatus(c echo.Context) error {
	resp := StatusResponse{
		Node:   s.node,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.poller != nil {
		resp.Processing = s.poller.Busy()
	}
	if s.handoff != nil {
		st, err := s.handoff.Status(c.Request().Context())
		if err != nil {
			return s.HandleError(c, err, "failed to read handoff state", http.StatusServiceUnavailable)
		}
		hs := &HandoffState{State: st.State.String(), Watermark: st.Watermark, Corrupt: st.Corrupt}
		if st.Pending != nil {
			hs.Pending = &PendingSession{
				SessionURL:  st.Pending.SessionURL,
				Kills:       st.Pending.Len(),
				PublishedAt: st.Pending.PublishedAt(),
			}
		}
		resp.Handoff = hs
	}
	if s.queue != nil {
		stats := s.queue.GetStats()
		resp.Uploads = &stats
	}
	if s.reports != nil {
		if last, ok := s.reports.Last(); ok {
			resp.LastReport = last
		}
	}
	if s.outputDir != "" {
		resp.OutputDisk = outputDisk(s.outputDir)
	}
	return c.JSON(http.StatusOK, resp)
}

// outputDisk returns nil when usage cannot be read, such as before the directory exists.
func outputDisk(dir string) *DiskInfo {
	usage, err := disk.Usage(dir)
	if err != nil {
		GetLogger().Debug("failed to read output disk usage", logger.String("path", dir), logger.Error(err))
		return nil
	}
	return &DiskInfo{
		Path:      dir,
		Total:     usage.Total,
		Free:      usage.Free,
		UsagePerc: usage.UsedPercent,
	}
}

// GetPresets handles GET /api/v1/presets.
func (s *Server) GetPresets(c echo.Context) error {
	resp := PresetsResponse{
		Active:  s.activePreset,
		Config:  s.active,
		Presets: make(map[string]conf.DetectionConfig, len(conf.PresetNames())),
	}
	for _, name := range conf.PresetNames() {
		dc, err := conf.Preset(name)
		if err != nil {
			return s.HandleError(c, err, "failed to load preset", http.StatusInternalServerError)
		}
		resp.Presets[name] = dc
	}
	return c.JSON(http.StatusOK, resp)
}

// GetSessions handles GET /api/v1/sessions.
func (s *Server) GetSessions(c echo.Context) error {
	if s.reports == nil {
		return c.JSON(http.StatusOK, []*processor.Report{})
	}
	return c.JSON(http.StatusOK, s.reports.List())
}

// GetSession handles GET /api/v1/sessions/:id.
func (s *Server) GetSession(c echo.Context) error {
	id := c.Param("id")
	if s.reports != nil {
		if r, ok := s.reports.Get(id); ok {
			return c.JSON(http.StatusOK, r)
		}
	}
	err := errors.Newf("session report %q not found", id).
		Component("api").
		Category(errors.CategoryNotFound).
		Build()
	return s.HandleError(c, err, "session report not found", http.StatusNotFound)
}

// HandleError logs err and writes an ErrorResponse.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	GetLogger().Warn(message,
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", c.Request().URL.Path),
		logger.Int("status", code),
		logger.Error(err))
	return c.JSON(code, resp)
}

// errorHandler renders echo errors, such as unknown routes, as ErrorResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = http.StatusText(code)
	}
	if werr := s.HandleError(c, err, message, code); werr != nil {
		GetLogger().Error("failed to write error response", logger.Error(werr))
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "error-id"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
