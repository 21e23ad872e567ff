package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

// DefaultCooldown is the minimum interval between two notifications
// for the same (symbol, condition, target) key.
const DefaultCooldown = time.Minute

// sweepFactor controls how long an idle cooldown entry survives before
// Sweep drops it.
const sweepFactor = 10

// SpamGuard suppresses repeated notifications for the same alert key
// inside a cooldown window.
type SpamGuard struct {
	mu       sync.Mutex
	window   time.Duration
	lastSent map[string]time.Time
	now      func() time.Time
}

func NewSpamGuard(window time.Duration) *SpamGuard {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &SpamGuard{
		window:   window,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// GuardKey builds the suppression key for an alert. Alerts with the
// same symbol, condition and target share one cooldown entry.
func GuardKey(a core.Alert) string {
	return fmt.Sprintf("%s_%s_%g", a.Symbol, a.Condition, a.TargetPrice)
}

// Allow reports whether a notification for key may be sent now and, if
// so, records the send time. A suppressed call leaves the entry untouched.
func (g *SpamGuard) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastSent[key]; ok && now.Sub(last) < g.window {
		return false
	}

	g.lastSent[key] = now
	return true
}

// Sweep drops entries idle for more than sweepFactor cooldown windows
// so the map cannot grow without bound on long uptimes. Returns the
// number of evicted entries.
func (g *SpamGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-sweepFactor * g.window)
	evicted := 0
	for key, last := range g.lastSent {
		if last.Before(cutoff) {
			delete(g.lastSent, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of tracked cooldown keys
func (g *SpamGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastSent)
}
