package indicator

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

// minCandles is the smallest series that yields a stable 50-period average
const minCandles = 50

// Snapshot holds the latest value of each standard indicator for a symbol
type Snapshot struct {
	Symbol   string  `json:"symbol"`
	Close    float64 `json:"close"`
	RSI14    float64 `json:"rsi14"`
	EMA20    float64 `json:"ema20"`
	EMA50    float64 `json:"ema50"`
	SMA50    float64 `json:"sma50"`
	MACD     float64 `json:"macd"`
	Signal   float64 `json:"macd_signal"`
	Hist     float64 `json:"macd_hist"`
	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`
	ATR14    float64 `json:"atr14"`
}

// Compute derives a snapshot from a candle series ordered oldest first
func Compute(symbol string, candles []core.Candle) (*Snapshot, error) {
	if len(candles) < minCandles {
		return nil, fmt.Errorf("need at least %d candles, got %d", minCandles, len(candles))
	}

	closes := lo.Map(candles, func(c core.Candle, _ int) float64 { return c.Close })
	highs := lo.Map(candles, func(c core.Candle, _ int) float64 { return c.High })
	lows := lo.Map(candles, func(c core.Candle, _ int) float64 { return c.Low })

	macd, signal, hist := MACD(closes, 12, 26, 9)
	upper, middle, lower := BB(closes, 20, 2.0, TypeSMA)

	last := len(closes) - 1

	return &Snapshot{
		Symbol:   symbol,
		Close:    closes[last],
		RSI14:    RSI(closes, 14)[last],
		EMA20:    EMA(closes, 20)[last],
		EMA50:    EMA(closes, 50)[last],
		SMA50:    SMA(closes, 50)[last],
		MACD:     macd[last],
		Signal:   signal[last],
		Hist:     hist[last],
		BBUpper:  upper[last],
		BBMiddle: middle[last],
		BBLower:  lower[last],
		ATR14:    ATR(highs, lows, closes, 14)[last],
	}, nil
}
