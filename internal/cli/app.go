package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/storesync/internal/config"
	"github.com/roach88/storesync/internal/engine"
	"github.com/roach88/storesync/internal/geocode"
	"github.com/roach88/storesync/internal/lock"
	"github.com/roach88/storesync/internal/logging"
	"github.com/roach88/storesync/internal/notify"
	"github.com/roach88/storesync/internal/project"
	"github.com/roach88/storesync/internal/store"
	"github.com/roach88/storesync/internal/telemetry"
)

// Version is the service.version of emitted traces; set by the linker.
var Version = "dev"

// app is the wired runtime built from a configuration file.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	closers []func(context.Context) error
}

// loadConfig reads the configuration, mapping failures to exit codes.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return nil, WrapExitError(ExitFailure, "invalid configuration", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// openApp loads configuration, builds the logger and opens the database.
// Callers must Close the app.
func openApp(opts *RootOptions, stderr io.Writer) (*app, error) {
	a, err := newApp(opts, stderr)
	if err != nil {
		return nil, err
	}
	if err := a.openStore(); err != nil {
		a.Close(context.Background())
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return a, nil
}

// newApp loads configuration and builds the logger. The database is not
// opened yet. Callers must Close the app.
func newApp(opts *RootOptions, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logOpts := cfg.Logging.Options()
	if opts.LogLevel != "" {
		logOpts.Level = opts.LogLevel
	}
	if opts.Verbose {
		logOpts.Level = "debug"
	}
	logger, logCloser, err := logging.New(stderr, logOpts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })
	return a, nil
}

func (a *app) openStore() error {
	a.logger.Debug("opening database", "driver", a.cfg.Database.Driver)
	st, err := store.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })
	return nil
}

// Close releases everything the app opened, in reverse order.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}

// engineDeps opens the database and wires the engine dependencies from
// configuration. An unreachable database is reported as QUERY_FAILURE;
// other wiring faults are UNEXPECTED_FAILURE.
func (a *app) engineDeps(ctx context.Context, notifier engine.Alerter) (engine.Deps, error) {
	cfg := a.cfg

	if err := a.openStore(); err != nil {
		return engine.Deps{}, engine.NewStartupFailure(engine.ErrCodeQueryFailure,
			fmt.Errorf("open database: %w", err))
	}

	target, err := project.ParseSRID(cfg.Projection.Target)
	if err != nil {
		return engine.Deps{}, startupFailure(fmt.Errorf("projection target: %w", err))
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return engine.Deps{}, startupFailure(fmt.Errorf("run lock: %w", err))
	}

	tracer, err := a.tracer(ctx)
	if err != nil {
		return engine.Deps{}, startupFailure(err)
	}

	return engine.Deps{
		Dataset:      a.store,
		Resolver:     geocode.NewHTTPResolver(cfg.Geocoder.URL, cfg.Geocoder.Timeout, cfg.Geocoder.FieldRoles),
		Notifier:     notifier,
		Projector:    project.New(target, cfg.Projection.Collections, a.logger),
		Collections:  a.store,
		Locker:       locker,
		Logger:       a.logger,
		Metrics:      telemetry.NewMetrics(),
		Tracer:       tracer,
		ConsumeQueue: cfg.Sync.ConsumeQueue,
	}, nil
}

func startupFailure(err error) *engine.RunError {
	return engine.NewStartupFailure(engine.ErrCodeUnexpected, err)
}

func (a *app) locker(ctx context.Context) (lock.Locker, error) {
	switch a.cfg.Lock.Kind {
	case config.LockNone:
		return lock.Noop{}, nil
	case config.LockRedis:
		client, err := lock.NewRedisClient(ctx, a.cfg.Lock.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return lock.NewRedisLocker(client, a.cfg.Lock.Key, a.cfg.Lock.TTL), nil
	default:
		return lock.NewFileLocker(a.cfg.Lock.Path), nil
	}
}

// notifier returns a nil Alerter when alerts are not configured.
func (a *app) notifier() (engine.Alerter, error) {
	alerts := a.cfg.Alerts
	if !alerts.Enabled() {
		a.logger.Warn("alerts not configured, failures will only be logged")
		return nil, nil
	}

	recipients, err := notify.LoadRecipients(alerts.RecipientsFile)
	if err != nil {
		return nil, err
	}

	var auth smtp.Auth
	if alerts.SMTP.Username != "" {
		host, _, err := net.SplitHostPort(alerts.SMTP.Addr)
		if err != nil {
			return nil, fmt.Errorf("smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", alerts.SMTP.Username, alerts.SMTP.Password, host)
	}

	channel := notify.NewSMTPChannel(alerts.SMTP.Addr, alerts.SMTP.From, auth, alerts.SMTP.Timeout)
	return notify.New(channel, recipients, notify.WithLogger(a.logger)), nil
}

func (a *app) tracer(ctx context.Context) (trace.Tracer, error) {
	tel := a.cfg.Telemetry
	tp, shutdown, err := telemetry.NewTracerProvider(ctx,
		telemetry.WithServiceVersion(Version),
		telemetry.WithEndpoint(tel.OTLPEndpoint),
		telemetry.WithInsecure(tel.Insecure),
		telemetry.WithSampling(tel.Sampling),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	return tp.Tracer(telemetry.TracerName), nil
}

// pushMetrics sends run metrics to the Pushgateway if one is configured.
func (a *app) pushMetrics(ctx context.Context, m *telemetry.Metrics) {
	url := a.cfg.Telemetry.PushgatewayURL
	if url == "" || m == nil {
		return
	}
	if err := m.Push(ctx, url); err != nil {
		a.logger.Warn("push metrics", "error", err)
	}
}
