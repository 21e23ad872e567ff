package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

func syntheticCandles(n int) []core.Candle {
	candles := make([]core.Candle, n)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		// gentle sine wave around 100 so every indicator has variance to work with
		close := 100 + 5*math.Sin(float64(i)/7)
		candles[i] = core.Candle{
			Symbol:   "BTCUSDT",
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     close - 0.5,
			High:     close + 1,
			Low:      close - 1,
			Close:    close,
			Volume:   10,
			Complete: true,
		}
	}
	return candles
}

func TestCompute(t *testing.T) {
	candles := syntheticCandles(200)

	snapshot, err := Compute("BTCUSDT", candles)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snapshot.Symbol)
	assert.Equal(t, candles[len(candles)-1].Close, snapshot.Close)

	assert.Greater(t, snapshot.RSI14, 0.0)
	assert.Less(t, snapshot.RSI14, 100.0)

	// averages of a series oscillating around 100 stay near 100
	assert.InDelta(t, 100, snapshot.EMA20, 6)
	assert.InDelta(t, 100, snapshot.EMA50, 6)
	assert.InDelta(t, 100, snapshot.SMA50, 6)

	assert.Greater(t, snapshot.BBUpper, snapshot.BBMiddle)
	assert.Greater(t, snapshot.BBMiddle, snapshot.BBLower)

	assert.InDelta(t, snapshot.MACD-snapshot.Signal, snapshot.Hist, 1e-9)

	assert.Greater(t, snapshot.ATR14, 0.0)
}

func TestCompute_RejectsShortSeries(t *testing.T) {
	_, err := Compute("BTCUSDT", syntheticCandles(30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")
}
