package cryptoanalyzer

import (
	"context"
	"fmt"

	"github.com/ghiemer/crypto-analyzer-gpt/internal/api"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/alert"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/exchange/bitget"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/feargreed"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/notification"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/storage"
)

const defaultDatabase = "crypto-analyzer.db"

// DefaultLog is the logger used when no custom logger is provided
var DefaultLog logger.Logger

// App wires the exchange client, alert registry, notification transport
// and HTTP API into a single runnable unit
type App struct {
	settings  core.Settings
	exchange  *bitget.Exchange
	sentiment *feargreed.Service
	registry  *alert.Registry
	storage   core.AlertStorage
	notifier  core.Notifier
	telegram  core.NotifierWithStart
	server    *api.Server
	log       logger.Logger
}

// New creates a new application instance with the provided settings
func New(settings core.Settings, options ...Option) (*App, error) {
	app := &App{
		settings: settings,
		log:      DefaultLog,
	}

	for _, option := range options {
		option(app)
	}

	if app.exchange == nil {
		app.exchange = bitget.NewExchange(app.log, bitget.Config{
			Timeout: settings.Monitor.RequestTimeout,
		})
	}

	if app.sentiment == nil {
		app.sentiment = feargreed.NewService(feargreed.Config{})
	}

	if err := initializeStorage(app); err != nil {
		return nil, err
	}

	app.registry = alert.NewRegistry(app.exchange, app.storage, app.log, settings.Monitor)

	if err := initializeNotifier(app); err != nil {
		return nil, err
	}

	app.server = api.NewServer(app.registry, app.exchange, app.sentiment, app.log, settings.APIKey)

	return app, nil
}

// initializeStorage sets up a local database when no storage was injected
func initializeStorage(app *App) error {
	if app.storage != nil {
		return nil
	}

	store, err := storage.FromFile(defaultDatabase)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.storage = store
	return nil
}

// initializeNotifier connects the Telegram transport when enabled
func initializeNotifier(app *App) error {
	if app.notifier != nil {
		app.registry.SetNotifier(app.notifier)
		return nil
	}

	if !app.settings.Telegram.Enabled {
		return nil
	}

	telegram, err := notification.NewTelegram(app.registry, &app.settings, app.log,
		notification.WithFearGreed(app.sentiment))
	if err != nil {
		return fmt.Errorf("failed to initialize telegram: %w", err)
	}

	app.telegram = telegram
	app.notifier = telegram
	app.registry.SetNotifier(telegram)
	return nil
}

// Registry exposes the alert registry, mainly for tests and embedding
func (a *App) Registry() *alert.Registry {
	return a.registry
}

// Run starts monitoring, the Telegram bot, and the HTTP API.
// It blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.telegram != nil {
		a.telegram.Start()
		defer a.telegram.Stop()
	}

	a.registry.StartMonitoring(ctx)
	defer a.registry.StopMonitoring()

	defer func() {
		if err := a.storage.Close(); err != nil {
			a.log.WithError(err).Error("failed to close storage")
		}
	}()

	a.log.WithFields(map[string]any{
		"listen":         a.settings.Listen,
		"check_interval": a.settings.Monitor.CheckInterval.String(),
	}).Info("crypto analyzer started")

	return a.server.ListenAndServe(ctx, a.settings.Listen)
}
