package alert

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

// Default pacing for the monitoring subsystem
const (
	defaultCheckInterval  = 10 * time.Second
	defaultPollInterval   = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultMaxFailures    = 3
	stopTimeout           = 5 * time.Second
	idleLogInterval       = 5 * time.Minute
)

// Registry is the in-memory store of all alerts plus the orchestration
// loop that reconciles registry state against running price streams.
// It owns the alert mapping exclusively; streams and the HTTP/Telegram
// surfaces only go through its methods.
type Registry struct {
	mu     sync.RWMutex
	alerts map[string]*core.Alert
	prices map[string]float64 // last successful fetch per symbol, last-write-wins

	guard    *SpamGuard
	streams  *StreamManager
	source   core.PriceSource
	notifier core.Notifier
	storage  core.AlertStorage
	log      logger.Logger

	checkInterval  time.Duration
	requestTimeout time.Duration

	runMu  sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lastIdleLog time.Time // touched only by the monitor goroutine
}

// NewRegistry creates an alert registry. storage may be nil for a
// purely in-memory registry; when set, alerts are written through
// best-effort and restored once at construction.
func NewRegistry(source core.PriceSource, storage core.AlertStorage, log logger.Logger, settings core.MonitorSettings) *Registry {
	if settings.CheckInterval <= 0 {
		settings.CheckInterval = defaultCheckInterval
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = defaultRequestTimeout
	}

	r := &Registry{
		alerts:         make(map[string]*core.Alert),
		prices:         make(map[string]float64),
		guard:          NewSpamGuard(settings.Cooldown),
		source:         source,
		storage:        storage,
		log:            log,
		checkInterval:  settings.CheckInterval,
		requestTimeout: settings.RequestTimeout,
	}
	r.streams = newStreamManager(source, r, log, settings)
	r.restore()

	return r
}

// SetNotifier wires the notification sink. Alerts triggered while no
// notifier is set are still consumed, only the delivery is skipped.
func (r *Registry) SetNotifier(n core.Notifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

// restore loads persisted alerts, best-effort
func (r *Registry) restore() {
	if r.storage == nil {
		return
	}

	alerts, err := r.storage.Alerts()
	if err != nil {
		r.log.WithError(err).Warn("failed to restore persisted alerts")
		return
	}

	for _, a := range alerts {
		if a.Triggered {
			continue
		}
		copied := *a
		r.alerts[copied.ID] = &copied
	}

	if len(r.alerts) > 0 {
		r.log.Infof("restored %d persisted alerts", len(r.alerts))
	}
}

// Create validates, stores and starts monitoring a new alert, returning
// its id. The symbol is normalized to its uppercase, trimmed form.
func (r *Registry) Create(symbol string, condition core.AlertCondition, targetPrice float64, description string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", core.ErrInvalidSymbol
	}
	if targetPrice <= 0 {
		return "", core.ErrInvalidTargetPrice
	}
	if _, err := core.ParseCondition(string(condition)); err != nil {
		return "", err
	}

	a := &core.Alert{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Condition:   condition,
		TargetPrice: targetPrice,
		Description: description,
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	r.alerts[a.ID] = a
	r.mu.Unlock()

	r.persist(a)
	r.log.Infof("alert created: %s %s @ $%.2f", symbol, condition, targetPrice)

	// Start the symbol stream right away instead of waiting for the
	// next reconciliation sweep.
	if ctx := r.runningContext(); ctx != nil {
		go r.streams.Ensure(ctx, symbol)
	}

	return a.ID, nil
}

// Delete removes an alert. Deleting an unknown id is a no-op, not an error.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	a, ok := r.alerts[id]
	if ok {
		delete(r.alerts, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.unpersist(id)
	r.log.Infof("alert deleted: %s", id)

	// The symbol stream may no longer be needed
	if ctx := r.runningContext(); ctx != nil {
		go r.streams.Ensure(ctx, a.Symbol)
	}
}

// Get returns a copy of the alert with the given id
func (r *Registry) Get(id string) (core.Alert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return core.Alert{}, false
	}
	return *a, true
}

// Active returns a snapshot of all non-triggered alerts matching the
// given filters. Order is unspecified.
func (r *Registry) Active(filters ...core.AlertFilter) []core.Alert {
	r.mu.RLock()
	snapshot := make([]core.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if !a.Triggered {
			snapshot = append(snapshot, *a)
		}
	}
	r.mu.RUnlock()

	return lo.Filter(snapshot, func(a core.Alert, _ int) bool {
		for _, filter := range filters {
			if !filter(a) {
				return false
			}
		}
		return true
	})
}

// Stats describes the monitoring state for the status surface
type Stats struct {
	TotalActive      int                `json:"total_active"`
	BySymbol         map[string]int     `json:"by_symbol"`
	ActiveStreams    int                `json:"active_streams"`
	StreamingSymbols []string           `json:"streaming_symbols"`
	PriceCache       map[string]float64 `json:"price_cache"`
	CheckInterval    string             `json:"check_interval"`
	SpamProtection   int                `json:"spam_protection"`
}

func (r *Registry) Stats() Stats {
	active := r.Active()

	r.mu.RLock()
	prices := make(map[string]float64, len(r.prices))
	for symbol, price := range r.prices {
		prices[symbol] = price
	}
	r.mu.RUnlock()

	return Stats{
		TotalActive:      len(active),
		BySymbol:         lo.CountValuesBy(active, func(a core.Alert) string { return a.Symbol }),
		ActiveStreams:    r.streams.Count(),
		StreamingSymbols: r.streams.Symbols(),
		PriceCache:       prices,
		CheckInterval:    r.checkInterval.String(),
		SpamProtection:   r.guard.Len(),
	}
}

// StartMonitoring launches the reconciliation loop. It is idempotent:
// a second call while running does nothing and returns false.
func (r *Registry) StartMonitoring(ctx context.Context) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.cancel != nil {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runCtx = runCtx
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.monitor(runCtx, r.done)
	return true
}

// StopMonitoring cancels the reconciliation loop and every symbol
// stream, waiting until all background activity has stopped. Safe to
// call when not running (returns false).
func (r *Registry) StopMonitoring() bool {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.runCtx, r.cancel, r.done = nil, nil, nil
	r.runMu.Unlock()

	if cancel == nil {
		return false
	}

	cancel()
	<-done
	r.streams.StopAll(stopTimeout)
	r.log.Info("alert monitoring stopped")
	return true
}

// runningContext returns the monitoring context, or nil when stopped
func (r *Registry) runningContext() context.Context {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.runCtx
}

// monitor is the main reconciliation loop. Only cancellation ends it;
// any failure inside one pass is logged and the next tick tries again.
func (r *Registry) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.log.Infof("alert monitoring started (fallback sweep every %s)", r.checkInterval)

	for {
		r.reconcile(ctx)
		if !sleep(ctx, r.checkInterval) {
			return
		}
	}
}

// reconcile aligns running streams with current alert demand: streams
// are started for every symbol with active alerts, orphaned streams
// are stopped, and a direct price check covers the window where alerts
// exist but no stream survived.
func (r *Registry) reconcile(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("monitoring loop recovered: %v", rec)
		}
	}()

	defer r.guard.Sweep()

	active := r.Active()
	if len(active) == 0 {
		if r.streams.Count() > 0 {
			r.log.Info("no alerts found, stopping all price streams")
			r.streams.StopAll(stopTimeout)
		}
		r.logIdle()
		return
	}

	wanted := lo.Uniq(lo.Map(active, func(a core.Alert, _ int) string { return a.Symbol }))
	for _, symbol := range wanted {
		r.streams.Ensure(ctx, symbol)
	}
	for _, symbol := range r.streams.Symbols() {
		if !lo.Contains(wanted, symbol) {
			r.streams.Ensure(ctx, symbol) // demand is gone, Ensure stops it
		}
	}

	r.log.Infof("monitoring: %d alerts, %d active streams", len(active), r.streams.Count())

	if r.streams.Count() == 0 {
		r.log.Warn("no streams running but alerts exist, running fallback check")
		r.fallbackCheck(ctx, active)
	}
}

// fallbackCheck fetches each affected symbol's price once and runs the
// evaluation pipeline synchronously, so alerts are never silently
// stalled while every stream is dead.
func (r *Registry) fallbackCheck(ctx context.Context, active []core.Alert) {
	bySymbol := lo.GroupBy(active, func(a core.Alert) string { return a.Symbol })

	for symbol, alerts := range bySymbol {
		fetchCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		price, err := r.source.LastPrice(fetchCtx, symbol)
		cancel()
		if err != nil {
			r.log.WithError(err).Warnf("fallback: could not get price for %s", symbol)
			continue
		}

		r.log.Infof("fallback: %s: $%.2f (checking %d alerts)", symbol, price, len(alerts))
		r.checkSymbol(ctx, symbol, price)
	}
}

// logIdle rate-limits the "nothing to do" log line
func (r *Registry) logIdle() {
	now := time.Now()
	if now.Sub(r.lastIdleLog) < idleLogInterval {
		return
	}
	r.lastIdleLog = now
	r.log.Info("no active alerts to monitor")
}

// activeCount implements streamChecker
func (r *Registry) activeCount(symbol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, a := range r.alerts {
		if a.Symbol == symbol && !a.Triggered {
			count++
		}
	}
	return count
}

// checkSymbol implements streamChecker: it records the price, runs
// every active alert for the symbol through the evaluator, fires the
// ones that trigger and returns how many active alerts remain. The
// candidate list is snapshotted first so firing (which deletes) never
// mutates a collection mid-iteration.
func (r *Registry) checkSymbol(ctx context.Context, symbol string, price float64) int {
	r.mu.Lock()
	r.prices[symbol] = price
	candidates := make([]core.Alert, 0)
	for _, a := range r.alerts {
		if a.Symbol == symbol && !a.Triggered {
			candidates = append(candidates, *a)
		}
	}
	r.mu.Unlock()

	remaining := len(candidates)
	for _, a := range candidates {
		if ctx.Err() != nil {
			return remaining
		}
		if !Evaluate(a, price) {
			continue
		}
		if !r.guard.Allow(GuardKey(a)) {
			// Condition holds but a notification for this key went out
			// inside the cooldown window; the alert stays armed.
			r.log.Debugf("alert %s suppressed by cooldown", a.ID)
			continue
		}

		r.fire(a, price)
		remaining--
	}

	return remaining
}

// fire consumes a triggered alert: the notification is sent
// best-effort, then the alert is marked triggered and removed in one
// locked step. A failed delivery does not resurrect the alert; the
// condition was real and has been consumed.
func (r *Registry) fire(a core.Alert, price float64) {
	message := FormatMessage(a, price, time.Now())

	r.mu.RLock()
	notifier := r.notifier
	r.mu.RUnlock()

	if notifier != nil && !notifier.Notify(message) {
		r.log.Errorf("failed to deliver notification for alert %s", a.ID)
	}

	r.mu.Lock()
	if stored, ok := r.alerts[a.ID]; ok {
		stored.Triggered = true
		delete(r.alerts, a.ID)
	}
	r.mu.Unlock()

	r.unpersist(a.ID)
	r.log.Infof("alert triggered and removed: %s %s @ $%.2f", a.Symbol, a.Condition, price)
}

// persist writes an alert to the side store, best-effort
func (r *Registry) persist(a *core.Alert) {
	if r.storage == nil {
		return
	}
	copied := *a
	if err := r.storage.SaveAlert(&copied); err != nil {
		r.log.WithError(err).Warnf("failed to persist alert %s", a.ID)
	}
}

// unpersist removes an alert from the side store, best-effort
func (r *Registry) unpersist(id string) {
	if r.storage == nil {
		return
	}
	if err := r.storage.DeleteAlert(id); err != nil {
		r.log.WithError(err).Warnf("failed to remove persisted alert %s", id)
	}
}
