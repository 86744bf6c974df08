package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
	metricspkg "github.com/tphakala/killclip/internal/observability/metrics"
)

// Endpoint serves the Prometheus-compatible /metrics endpoint.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint returns an endpoint for settings. It fails when telemetry is disabled.
func NewEndpoint(settings conf.TelemetrySettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, errors.NewStd("telemetry not enabled in settings")
	}
	if settings.Listen == "" {
		return nil, errors.NewStd("telemetry listen address is empty")
	}
	return &Endpoint{listenAddress: settings.Listen, metrics: metrics}, nil
}

// Run listens until ctx is done and then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
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

	GetLogger().Info("stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
