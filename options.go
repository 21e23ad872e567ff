package cryptoanalyzer

import (
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/exchange/bitget"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/feargreed"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

// Option is a functional option for configuring an App instance
type Option func(*App)

// WithLogger overrides the default logger
func WithLogger(log logger.Logger) Option {
	return func(app *App) {
		app.log = log
	}
}

// WithStorage sets the alert storage, by default a local file called crypto-analyzer.db
func WithStorage(storage core.AlertStorage) Option {
	return func(app *App) {
		app.storage = storage
	}
}

// WithNotifier registers a custom notification transport instead of Telegram
func WithNotifier(notifier core.Notifier) Option {
	return func(app *App) {
		app.notifier = notifier
	}
}

// WithExchange overrides the default Bitget client
func WithExchange(exchange *bitget.Exchange) Option {
	return func(app *App) {
		app.exchange = exchange
	}
}

// WithFearGreed overrides the default Fear & Greed service
func WithFearGreed(sentiment *feargreed.Service) Option {
	return func(app *App) {
		app.sentiment = sentiment
	}
}
