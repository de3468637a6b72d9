// Package runtime wires the leafscan components together from settings.
// Commands receive a Context and use its services; nothing in the core
// packages reads configuration directly.
package runtime

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cropdx/leafscan/internal/buildinfo"
	"github.com/cropdx/leafscan/internal/conf"
	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/history"
	"github.com/cropdx/leafscan/internal/httpclient"
	"github.com/cropdx/leafscan/internal/logger"
	"github.com/cropdx/leafscan/internal/observability"
	"github.com/cropdx/leafscan/internal/preferences"
	"github.com/cropdx/leafscan/internal/remote"
	"github.com/cropdx/leafscan/internal/report"
	"github.com/cropdx/leafscan/internal/session"
	"github.com/cropdx/leafscan/internal/staging"
)

// telemetryFlushTimeout bounds how long Close waits for queued error reports.
const telemetryFlushTimeout = 2 * time.Second

// Context holds the services built for one CLI invocation.
type Context struct {
	Settings *conf.Settings
	Build    *buildinfo.Context

	Logger   *logger.CentralLogger
	HTTP     *httpclient.Client
	Remote   *remote.Client
	Uploads  *remote.ImageFetcher
	Previews *staging.CountingAllocator
	Staging  *staging.Store
	Session  *session.Controller
	History  *history.Repository
	Metrics  *observability.Metrics
	Theme    *preferences.ThemeService

	log       logger.Logger
	telemetry bool
}

// Option configures construction of a Context.
type Option func(*options)

type options struct {
	console   io.Writer
	transport http.RoundTripper
	prefs     preferences.Store
	previews  staging.PreviewAllocator
}

// WithConsole sets where console logs are written. Defaults to stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithTransport overrides the HTTP transport used for the service.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithPreferencesStore overrides the preferences file store.
func WithPreferencesStore(s preferences.Store) Option {
	return func(o *options) { o.prefs = s }
}

// WithPreviewAllocator overrides the temp-file preview allocator.
func WithPreviewAllocator(a staging.PreviewAllocator) Option {
	return func(o *options) { o.previews = a }
}

// New builds every service from settings. The returned Context must be closed.
func New(settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*Context, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	central, err := logger.NewCentralLoggerWithWriter(settings.LoggerConfig(), o.console)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(central)
	log := central.Module("runtime")

	rc := &Context{
		Settings: settings,
		Build:    build,
		Logger:   central,
		log:      log,
	}

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, build.Version()); err != nil {
			// Telemetry is optional; run without it
			log.Warn("Error reporting disabled", logger.Error(err))
		} else {
			rc.telemetry = true
		}
	}

	rc.HTTP, err = httpclient.New(&httpclient.Config{
		BaseURL:        settings.API.BaseURL,
		DefaultTimeout: settings.API.Timeout,
		UserAgent:      build.UserAgent(settings.API.UserAgent),
		Transport:      o.transport,
	})
	if err != nil {
		_ = central.Close()
		return nil, errors.New(err).
			Component("runtime").
			Category(errors.CategoryConfiguration).
			UserMessage("The configured service address is not valid.").
			Build()
	}

	rc.Remote, err = remote.NewClient(rc.HTTP, remote.WithLogger(central.Module("remote")))
	if err != nil {
		rc.HTTP.Close()
		_ = central.Close()
		return nil, err
	}
	rc.Uploads = remote.NewImageFetcher(rc.Remote, settings.Uploads.CacheTTL, settings.Uploads.RateLimit)

	rc.Metrics, err = observability.NewMetrics()
	if err != nil {
		rc.HTTP.Close()
		_ = central.Close()
		return nil, err
	}
	rc.Metrics.InstrumentClient(rc.HTTP, remote.EndpointLabel)

	next := o.previews
	if next == nil {
		next = staging.TempFileAllocator{}
	}
	rc.Previews = &staging.CountingAllocator{Next: next}
	rc.Staging = staging.NewStore(rc.Previews,
		staging.WithMaxBytes(settings.Staging.MaxBytes),
		staging.WithLogger(central.Module("staging")))

	rc.Session = session.New(rc.Staging, rc.Remote, session.WithLogger(central.Module("session")))
	rc.Metrics.ObserveSession(rc.Session)

	rc.History = history.NewRepository(rc.Remote, history.WithLogger(central.Module("history")))
	rc.Metrics.ObserveHistory(rc.History)

	store := o.prefs
	if store == nil {
		store = preferences.NewFileStore(settings.Preferences.Path)
	}
	fallback, err := preferences.ParseTheme(settings.UI.Theme)
	if err != nil {
		fallback = preferences.DefaultTheme
	}
	rc.Theme = preferences.NewThemeService(store, fallback)

	log.Debug("Runtime initialized",
		logger.String("base_url", rc.Remote.BaseURL()),
		logger.Duration("timeout", settings.API.Timeout),
		logger.String("version", build.Version()))

	return rc, nil
}

// Printer returns a report printer for w, coloured for the current theme
// when w is a terminal and colour is not disabled.
func (c *Context) Printer(w io.Writer) *report.Printer {
	theme, err := c.Theme.Current()
	if err != nil {
		c.log.Debug("Using fallback theme", logger.Error(err))
	}
	color := false
	if f, ok := w.(*os.File); ok && !c.Settings.UI.NoColor && os.Getenv("NO_COLOR") == "" {
		color = report.IsTerminal(f)
	}
	return report.NewPrinter(w, report.PaletteFor(theme, color))
}

// Provider returns the Context of the running command. Commands receive a
// Provider because the Context is built after flags are parsed.
type Provider func() *Context

// Close releases the session, reports any preview handles left allocated and
// flushes logs and telemetry. It returns the number of leaked previews.
func (c *Context) Close() int64 {
	c.Session.Close()

	leaked := c.Previews.Live()
	if leaked != 0 {
		allocated, released := c.Previews.Counts()
		c.log.Error("Preview handles leaked",
			logger.Int64("live", leaked),
			logger.Int64("allocated", allocated),
			logger.Int64("released", released))
	}

	c.HTTP.Close()
	if c.telemetry {
		errors.FlushTelemetry(telemetryFlushTimeout)
	}
	_ = c.Logger.Close()
	return leaked
}
