package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

func TestSpamGuard_CooldownWindow(t *testing.T) {
	now := time.Now()
	guard := NewSpamGuard(time.Minute)
	guard.now = func() time.Time { return now }

	key := GuardKey(core.Alert{Symbol: "BTCUSDT", Condition: core.PriceAbove, TargetPrice: 50000})

	require.True(t, guard.Allow(key))
	require.False(t, guard.Allow(key), "second call inside the window must be suppressed")

	now = now.Add(59 * time.Second)
	require.False(t, guard.Allow(key))

	now = now.Add(2 * time.Second)
	require.True(t, guard.Allow(key), "call after the window must pass")
}

func TestSpamGuard_SuppressedCallDoesNotExtendWindow(t *testing.T) {
	now := time.Now()
	guard := NewSpamGuard(time.Minute)
	guard.now = func() time.Time { return now }

	require.True(t, guard.Allow("k"))

	// Hammering the key during the window must not push the expiry out
	for i := 0; i < 10; i++ {
		now = now.Add(5 * time.Second)
		require.False(t, guard.Allow("k"), "call at %s must be suppressed", now)
	}

	// 50s of suppressed calls later, the window still ends 60s after
	// the first send
	now = now.Add(11 * time.Second)
	require.True(t, guard.Allow("k"))
}

func TestSpamGuard_KeysAreIndependent(t *testing.T) {
	guard := NewSpamGuard(time.Minute)

	above := GuardKey(core.Alert{Symbol: "BTCUSDT", Condition: core.PriceAbove, TargetPrice: 50000})
	below := GuardKey(core.Alert{Symbol: "BTCUSDT", Condition: core.PriceBelow, TargetPrice: 50000})
	require.NotEqual(t, above, below)

	require.True(t, guard.Allow(above))
	require.True(t, guard.Allow(below))
}

func TestSpamGuard_Sweep(t *testing.T) {
	now := time.Now()
	guard := NewSpamGuard(time.Minute)
	guard.now = func() time.Time { return now }

	require.True(t, guard.Allow("old"))
	now = now.Add(11 * time.Minute)
	require.True(t, guard.Allow("fresh"))

	require.Equal(t, 1, guard.Sweep())
	require.Equal(t, 1, guard.Len())
}
