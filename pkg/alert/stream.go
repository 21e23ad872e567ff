package alert

import (
	"context"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/jpillora/backoff"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

// streamChecker is the slice of registry behavior a poll loop needs:
// alert demand for a symbol and the evaluate-and-fire pipeline.
type streamChecker interface {
	activeCount(symbol string) int
	checkSymbol(ctx context.Context, symbol string, price float64) int
}

// StreamManager owns one polling goroutine per symbol that currently
// has at least one active alert. Streams are started and stopped by
// Ensure; each stream deregisters itself on exit so the registry's
// reconciliation pass can restart it later.
type StreamManager struct {
	mu      sync.Mutex
	streams map[string]*stream
	symbols *set.LinkedHashSetString // symbols with a live stream, insertion order

	source  core.PriceSource
	checker streamChecker
	log     logger.Logger

	pollInterval   time.Duration
	requestTimeout time.Duration
	maxFailures    int
}

// stream is a running poll task for one symbol
type stream struct {
	symbol string
	cancel context.CancelFunc
	done   chan struct{}
}

func newStreamManager(source core.PriceSource, checker streamChecker, log logger.Logger, cfg core.MonitorSettings) *StreamManager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}

	return &StreamManager{
		streams:        make(map[string]*stream),
		symbols:        set.NewLinkedHashSetString(),
		source:         source,
		checker:        checker,
		log:            log,
		pollInterval:   cfg.PollInterval,
		requestTimeout: cfg.RequestTimeout,
		maxFailures:    cfg.MaxFailures,
	}
}

// Ensure reconciles the stream for one symbol against alert demand: it
// starts a poll stream when the symbol has active alerts and none is
// running, and stops a running stream when the demand is gone.
func (m *StreamManager) Ensure(ctx context.Context, symbol string) {
	want := m.checker.activeCount(symbol) > 0

	m.mu.Lock()
	_, running := m.streams[symbol]

	if want && !running {
		streamCtx, cancel := context.WithCancel(ctx)
		s := &stream{symbol: symbol, cancel: cancel, done: make(chan struct{})}
		m.streams[symbol] = s
		m.symbols.Add(symbol)
		go m.poll(streamCtx, s)
		m.mu.Unlock()

		m.log.Infof("price stream started for %s", symbol)
		return
	}
	m.mu.Unlock()

	if !want && running {
		m.stop(symbol)
	}
}

// stop cancels the stream for symbol and waits for it to terminate
func (m *StreamManager) stop(symbol string) {
	m.mu.Lock()
	s, ok := m.streams[symbol]
	m.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	<-s.done
	m.log.Infof("price stream stopped for %s", symbol)
}

// StopAll cancels every running stream and waits for completion with a
// bounded grace period, logging if the deadline is exceeded.
func (m *StreamManager) StopAll(timeout time.Duration) {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.cancel()
	}

	deadline := time.After(timeout)
	for _, s := range streams {
		select {
		case <-s.done:
		case <-deadline:
			m.log.Warnf("timed out waiting for %s stream to stop", s.symbol)
			return
		}
	}
}

// Running reports whether a stream is currently live for symbol
func (m *StreamManager) Running(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[symbol]
	return ok
}

// Count reports the number of live streams
func (m *StreamManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Symbols returns the symbols with a live stream, in start order
func (m *StreamManager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, m.symbols.Length())
	for symbol := range m.symbols.Iter() {
		out = append(out, symbol)
	}
	return out
}

// poll is the per-symbol monitoring loop. It runs until the stream is
// cancelled, the symbol has no more active alerts, or the consecutive
// failure threshold is reached; the reconciliation sweep restarts dead
// streams while demand remains, which gives a natural backoff.
func (m *StreamManager) poll(ctx context.Context, s *stream) {
	defer close(s.done)
	defer m.deregister(s.symbol, s.done)

	retry := &backoff.Backoff{
		Min:    m.pollInterval,
		Max:    6 * m.pollInterval,
		Factor: 2,
		Jitter: true,
	}
	failures := 0

	for {
		price, err := m.fetch(ctx, s.symbol)

		switch {
		case ctx.Err() != nil:
			return

		case err != nil:
			failures++
			m.log.WithError(err).Warnf("failed to get price for %s (%d/%d)", s.symbol, failures, m.maxFailures)
			if failures >= m.maxFailures {
				m.log.Errorf("too many failures for %s, stopping stream", s.symbol)
				return
			}
			if !sleep(ctx, retry.Duration()) {
				return
			}
			continue

		default:
			failures = 0
			retry.Reset()
			if remaining := m.checker.checkSymbol(ctx, s.symbol, price); remaining == 0 {
				m.log.Infof("no more alerts for %s, stopping stream", s.symbol)
				return
			}
		}

		if !sleep(ctx, m.pollInterval) {
			return
		}
	}
}

// fetch retrieves the latest price with a bounded request timeout so a
// hung upstream call cannot stall the stream.
func (m *StreamManager) fetch(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	return m.source.LastPrice(ctx, symbol)
}

// deregister removes the stream handle if it still belongs to this
// run, so a restart racing a slow exit cannot be unregistered.
func (m *StreamManager) deregister(symbol string, done chan struct{}) {
	m.mu.Lock()
	if s, ok := m.streams[symbol]; ok && s.done == done {
		delete(m.streams, symbol)
		m.symbols.Remove(symbol)
	}
	m.mu.Unlock()
}

// sleep waits d or until ctx is cancelled, reporting whether to keep running
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
