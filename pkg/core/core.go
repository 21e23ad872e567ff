package core

import "context"

// PriceSource provides the most recent close price of a symbol. It
// fails when the symbol is unknown or the upstream is unavailable;
// retrying is the caller's responsibility.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier delivers a user-facing message. Implementations must never
// panic; any delivery failure is reported as false.
type Notifier interface {
	Notify(text string) bool
}

// NotifierWithStart is a notifier with its own receive loop, e.g. a
// Telegram bot that also handles inbound commands.
type NotifierWithStart interface {
	Notifier
	Start()
	Stop()
}

// AlertStorage persists alerts as a best-effort side store. The
// registry never treats a storage failure as fatal.
type AlertStorage interface {
	SaveAlert(alert *Alert) error
	DeleteAlert(id string) error
	Alerts(filters ...AlertFilter) ([]*Alert, error)
	Close() error
}
