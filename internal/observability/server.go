package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/logger"
)

// ShutdownTimeout bounds graceful shutdown of the status server.
const ShutdownTimeout = 5 * time.Second

// StatsFunc returns the current aggregated statistics and whether history has
// been loaded at least once.
type StatsFunc func() (diagnosis.AggregatedStats, bool)

// Server exposes /metrics, /api/stats and /healthz on a local address.
type Server struct {
	echo    *echo.Echo
	metrics *Metrics
	stats   StatsFunc
	started time.Time
}

// NewServer creates the status server. stats may be nil, in which case
// /api/stats reports that no history is available.
func NewServer(m *Metrics, stats StatsFunc) *Server {
	s := &Server{
		echo:    echo.New(),
		metrics: m,
		stats:   stats,
		started: time.Now(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.GET("/metrics", echo.WrapHandler(m.Handler()))
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/healthz", s.handleHealth)
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	log.Info("Status server listening", logger.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server error: %w", err)
	}
	log.Info("Status server stopped")
	return nil
}

// Listen binds the TCP address for Serve. Binding separately lets callers
// report the bound address before serving starts.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server listen on %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) handleStats(c echo.Context) error {
	if s.stats == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history not loaded"})
	}
	stats, loaded := s.stats()
	if !loaded {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history not loaded"})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}
