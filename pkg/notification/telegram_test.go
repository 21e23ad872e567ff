package notification

import (
	"context"
	"testing"

	zl "github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/alert"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	zerolog "github.com/ghiemer/crypto-analyzer-gpt/pkg/logger/zerolog"
)

// staticSource always reports the same price
type staticSource struct{ price float64 }

func (s staticSource) LastPrice(context.Context, string) (float64, error) {
	return s.price, nil
}

func testRegistry(t *testing.T) *alert.Registry {
	t.Helper()
	nop := zl.Nop()
	return alert.NewRegistry(staticSource{price: 100}, nil, zerolog.NewAdapter(&nop), core.MonitorSettings{})
}

func TestWatchRegexp(t *testing.T) {
	tt := []struct {
		text        string
		symbol      string
		condition   core.AlertCondition
		price       string
		description string
		ok          bool
	}{
		{"/watch BTCUSDT above 70000", "BTCUSDT", core.PriceAbove, "70000", "", true},
		{"/watch ethusdt below 3000.5", "ethusdt", core.PriceBelow, "3000.5", "", true},
		{"/watch BTCUSDT breakout 4000 round number", "BTCUSDT", core.Breakout, "4000", "round number", true},
		{"/watch BTCUSDT sideways 70000", "", "", "", "", false},
		{"/watch BTCUSDT above", "", "", "", "", false},
		{"/watch", "", "", "", "", false},
	}

	for _, tc := range tt {
		match := watchRegexp.FindStringSubmatch(tc.text)
		if !tc.ok {
			assert.Empty(t, match, tc.text)
			continue
		}

		require.NotEmpty(t, match, tc.text)
		assert.Equal(t, tc.symbol, match[watchRegexp.SubexpIndex("symbol")])
		assert.Equal(t, tc.condition, conditionAliases[match[watchRegexp.SubexpIndex("condition")]])
		assert.Equal(t, tc.price, match[watchRegexp.SubexpIndex("price")])
		assert.Equal(t, tc.description, match[watchRegexp.SubexpIndex("description")])
	}
}

func TestUnwatchRegexp(t *testing.T) {
	match := unwatchRegexp.FindStringSubmatch("/unwatch 550e8400-e29b-41d4-a716-446655440000")
	require.NotEmpty(t, match)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", match[unwatchRegexp.SubexpIndex("id")])

	assert.Empty(t, unwatchRegexp.FindStringSubmatch("/unwatch"))
}

func TestUnwatchReply(t *testing.T) {
	registry := testRegistry(t)

	id, err := registry.Create("BTCUSDT", core.PriceAbove, 50000, "")
	require.NoError(t, err)

	reply := unwatchReply(registry, id)
	assert.Contains(t, reply, "removed")
	assert.Contains(t, reply, id)
	assert.Empty(t, registry.Active())

	// a second removal of the same id reports it as unknown
	assert.Contains(t, unwatchReply(registry, id), "No alert")
	assert.Contains(t, unwatchReply(registry, "no-such-id"), "No alert")
}

func TestFormatTarget(t *testing.T) {
	assert.Equal(t, "70000", formatTarget(70000))
	assert.Equal(t, "3000.5", formatTarget(3000.5))
	assert.Equal(t, "0.000075", formatTarget(0.000075))
}

func TestSentimentEmoji(t *testing.T) {
	assert.Equal(t, "😱", sentimentEmoji(10))
	assert.Equal(t, "😨", sentimentEmoji(30))
	assert.Equal(t, "😐", sentimentEmoji(60))
	assert.Equal(t, "🤑", sentimentEmoji(90))
}
