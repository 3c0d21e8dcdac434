package commands

import (
	"context"
	"net/http"

	"github.com/skylift/skylift/pkg/api"
	"github.com/skylift/skylift/pkg/config"
	"github.com/skylift/skylift/pkg/stores"
	"github.com/skylift/skylift/pkg/stream"
	"github.com/skylift/skylift/pkg/telemetry"
	"github.com/skylift/skylift/pkg/tracker"
)

// app bundles the wired client components every command needs: config,
// telemetry, backend client, and the local operation database.
type app struct {
	cfg     *config.Config
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	client  *api.Client
	store   stores.Store
}

// newApp loads configuration, applies flag overrides, and wires the client
// stack. Call close when done.
func newApp(ctx context.Context) (*app, error) {
	loader := config.NewLoader(nil)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	telCfg := cfg.Telemetry(appVersion)
	if err := telCfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(telCfg.Logging)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telCfg.Metrics)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		go func() {
			if err := metrics.Serve(); err != nil {
				logger.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}

	tracer, err := telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, appVersion, telCfg.Environment)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Server.ResolveToken()
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		BaseURL:    cfg.Server.BaseURL,
		Token:      api.StaticToken(token),
		HTTPClient: &http.Client{Timeout: cfg.Server.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Storage.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		client:  client,
		store:   store,
	}, nil
}

// close flushes telemetry and closes the local database.
func (a *app) close(ctx context.Context) {
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newSubscriber builds the push-stream subscriber for this app.
func (a *app) newSubscriber() (*stream.Subscriber, error) {
	return stream.NewSubscriber(stream.Config{
		BaseURL: a.cfg.Server.BaseURL,
		Token: func(context.Context) (string, error) {
			return a.cfg.Server.ResolveToken()
		},
		Logger:           a.logger,
		Metrics:          a.metrics,
		InactivityWindow: a.cfg.Stream.InactivityWindow,
		OnStalled: func(operationID string) {
			a.logger.WithOperationID(operationID).Warn("Stream silent past inactivity window")
		},
	})
}

// newTracker builds a tracker for the subject over this app's backend and
// stream subscriber.
func (a *app) newTracker(subject string) (*tracker.Tracker, error) {
	sub, err := a.newSubscriber()
	if err != nil {
		return nil, err
	}
	return tracker.New(tracker.Config{
		Subject:          subject,
		Backend:          a.client,
		Streams:          sub,
		Logger:           a.logger,
		Metrics:          a.metrics,
		CoalesceWindow:   a.cfg.Stream.CoalesceWindow,
		ReconcileTimeout: a.cfg.Server.ReconcileTimeout,
	})
}
