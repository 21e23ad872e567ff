package core

import "time"

// Candle represents one OHLCV bar of market data
type Candle struct {
	Symbol      string    `json:"symbol"`
	Time        time.Time `json:"time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume float64   `json:"quote_volume"`
	Complete    bool      `json:"complete"`
}
