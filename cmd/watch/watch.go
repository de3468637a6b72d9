package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cropdx/leafscan/internal/aggregate"
	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/history"
	"github.com/cropdx/leafscan/internal/logger"
	"github.com/cropdx/leafscan/internal/observability"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

// Command creates a new cobra.Command that polls history and serves status.
func Command(rt runtimectx.Provider) *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the history and print statistics when they change",
		Long: "Refresh the history on an interval and print a line whenever the statistics change. " +
			"With metrics enabled or --listen set, also serve /metrics and /api/stats.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rt()
			if interval <= 0 {
				interval = r.Settings.History.PollInterval
			}
			if listen == "" && r.Settings.Metrics.Enabled {
				listen = r.Settings.Metrics.Listen
			}
			return Run(cmd.Context(), r, cmd.OutOrStdout(), interval, listen)
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Poll interval (default from history.pollinterval)")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Serve metrics and stats on this address, e.g. 127.0.0.1:9464")

	return cmd
}

// Run polls until ctx is cancelled. A cancelled context is a clean exit.
func Run(ctx context.Context, rt *runtimectx.Context, out io.Writer, interval time.Duration, listen string) error {
	printer := rt.Printer(out)
	tracker := &statsTracker{}

	poller := history.NewPoller(rt.History, interval, func(records []diagnosis.HistoryRecord) {
		stats := aggregate.Stats(records)
		if tracker.changed(stats) {
			if err := printer.StatsLine(time.Now(), stats); err != nil {
				rt.Logger.Module("watch").Debug("Stats line write failed", logger.Error(err))
			}
		}
	})

	var (
		srv *observability.Server
		ln  net.Listener
	)
	if listen != "" {
		var err error
		ln, err = observability.Listen(ctx, listen)
		if err != nil {
			return err
		}
		srv = observability.NewServer(rt.Metrics, tracker.current)
		fmt.Fprintf(out, "Serving metrics on http://%s/metrics\n", ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Serve(gctx, ln)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// statsTracker remembers the last stats printed and serves them to the
// status endpoint.
type statsTracker struct {
	mu     sync.Mutex
	last   diagnosis.AggregatedStats
	loaded bool
}

func (t *statsTracker) changed(stats diagnosis.AggregatedStats) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded && sameStats(t.last, stats) {
		return false
	}
	t.last = stats
	t.loaded = true
	return true
}

func (t *statsTracker) current() (diagnosis.AggregatedStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.loaded
}

func sameStats(a, b diagnosis.AggregatedStats) bool {
	return a.Total == b.Total &&
		a.HealthyCount == b.HealthyCount &&
		a.AffectedCount == b.AffectedCount &&
		maps.Equal(a.PerLabelCounts, b.PerLabelCounts)
}
