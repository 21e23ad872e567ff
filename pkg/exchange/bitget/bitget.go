package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

const (
	// DefaultBaseURL is the Bitget v2 public REST endpoint
	DefaultBaseURL = "https://api.bitget.com/api/v2"

	defaultTimeout = 10 * time.Second

	futuresProductType = "usdt-futures"

	successCode = "00000"
)

// allowedGranularities is the set of candle intervals Bitget v2 accepts
var allowedGranularities = map[string]struct{}{
	"1min": {}, "3min": {}, "5min": {}, "15min": {}, "30min": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "12h": {},
	"1day": {}, "3day": {}, "1week": {}, "1M": {},
}

// NormalizeGranularity maps short interval notation ("15m") to the Bitget
// form ("15min") and rejects intervals the API does not support.
func NormalizeGranularity(granularity string) (string, error) {
	g := granularity
	if g != "1M" {
		g = strings.ToLower(g)
	}
	if strings.HasSuffix(g, "m") && !strings.HasSuffix(g, "min") {
		g = strings.TrimSuffix(g, "m") + "min"
	}
	if _, ok := allowedGranularities[g]; !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedGranularity, granularity)
	}
	return g, nil
}

// Config holds the exchange client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// Exchange is a Bitget v2 market-data client.
// It implements core.PriceSource.
type Exchange struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// Orderbook is a merged depth snapshot with best-of-book convenience fields
type Orderbook struct {
	BestBid float64      `json:"bestBid"`
	BestAsk float64      `json:"bestAsk"`
	Spread  float64      `json:"spread"`
	Bids    [][2]float64 `json:"bids"`
	Asks    [][2]float64 `json:"asks"`
}

// FundingRate is the current funding rate of a USDT-margined futures symbol
type FundingRate struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
}

// OpenInterest is the open interest of a USDT-margined futures symbol
type OpenInterest struct {
	OpenInterestList []struct {
		Symbol string `json:"symbol"`
		Size   string `json:"size"`
	} `json:"openInterestList"`
	Ts string `json:"ts"`
}

// NewExchange creates a new Bitget market-data client
func NewExchange(log logger.Logger, cfg Config) *Exchange {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Exchange{
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		log:     log,
	}
}

// apiResponse is the Bitget v2 response envelope
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *Exchange) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := e.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %s", core.ErrUpstream, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: bitget %s returned %d: %s",
			core.ErrUpstream, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: unexpected response format: %s", core.ErrUpstream, err)
	}

	if envelope.Code != successCode {
		return fmt.Errorf("%w: bitget %s code %s: %s",
			core.ErrUpstream, path, envelope.Code, envelope.Msg)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %s", core.ErrUpstream, err)
	}

	return nil
}

// LastPrice returns the most recent trade price of a spot symbol
func (e *Exchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var tickers []struct {
		Symbol string `json:"symbol"`
		LastPr string `json:"lastPr"`
	}

	params := url.Values{"symbol": {symbol}}
	if err := e.get(ctx, "/spot/market/tickers", params, &tickers); err != nil {
		return 0, err
	}

	if len(tickers) == 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPr, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing lastPr %q: %s", core.ErrUpstream, tickers[0].LastPr, err)
	}

	return price, nil
}

// CandlesByLimit returns up to limit candles for a spot symbol, ordered
// oldest first. Granularity accepts both short ("15m") and Bitget notation.
func (e *Exchange) CandlesByLimit(ctx context.Context, symbol, granularity string, limit int) ([]core.Candle, error) {
	g, err := NormalizeGranularity(granularity)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	params := url.Values{
		"symbol":      {symbol},
		"granularity": {g},
		"limit":       {strconv.Itoa(limit)},
	}
	if err := e.get(ctx, "/spot/market/candles", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseCandle(symbol, row)
		if err != nil {
			e.log.WithError(err).WithField("symbol", symbol).Warn("skipping malformed candle row")
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})

	return candles, nil
}

// Bitget candle rows: [ts, open, high, low, close, volBase, volQuote, volUsdt]
func parseCandle(symbol string, row []string) (core.Candle, error) {
	if len(row) < 7 {
		return core.Candle{}, fmt.Errorf("candle row has %d fields", len(row))
	}

	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return core.Candle{}, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}

	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		values[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return core.Candle{}, fmt.Errorf("invalid field %q: %w", row[i+1], err)
		}
	}

	return core.Candle{
		Symbol:      symbol,
		Time:        time.UnixMilli(ms).UTC(),
		Open:        values[0],
		High:        values[1],
		Low:         values[2],
		Close:       values[3],
		Volume:      values[4],
		QuoteVolume: values[5],
		Complete:    true,
	}, nil
}

// Orderbook returns a merged depth snapshot for a spot symbol
func (e *Exchange) Orderbook(ctx context.Context, symbol string, limit int) (*Orderbook, error) {
	var depth struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}

	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
	}
	if err := e.get(ctx, "/spot/market/merge-depth", params, &depth); err != nil {
		return nil, err
	}

	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return nil, fmt.Errorf("%w: bids: %s", core.ErrUpstream, err)
	}
	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return nil, fmt.Errorf("%w: asks: %s", core.ErrUpstream, err)
	}

	if len(bids) == 0 || len(asks) == 0 {
		return nil, fmt.Errorf("%w: empty orderbook for %s", core.ErrUpstream, symbol)
	}

	return &Orderbook{
		BestBid: bids[0][0],
		BestAsk: asks[0][0],
		Spread:  asks[0][0] - bids[0][0],
		Bids:    bids,
		Asks:    asks,
	}, nil
}

func parseLevels(raw [][]string) ([][2]float64, error) {
	levels := make([][2]float64, 0, len(raw))
	for _, level := range raw {
		if len(level) < 2 {
			return nil, fmt.Errorf("level has %d fields", len(level))
		}
		price, err := strconv.ParseFloat(level[0], 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.ParseFloat(level[1], 64)
		if err != nil {
			return nil, err
		}
		levels = append(levels, [2]float64{price, qty})
	}
	return levels, nil
}

// FundingRate returns the current funding rate of a USDT-futures symbol
func (e *Exchange) FundingRate(ctx context.Context, symbol string) (*FundingRate, error) {
	var rates []FundingRate
	params := url.Values{
		"symbol":      {symbol},
		"productType": {futuresProductType},
	}
	if err := e.get(ctx, "/mix/market/current-fund-rate", params, &rates); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}
	return &rates[0], nil
}

// OpenInterest returns the open interest of a USDT-futures symbol
func (e *Exchange) OpenInterest(ctx context.Context, symbol string) (*OpenInterest, error) {
	var oi OpenInterest
	params := url.Values{
		"symbol":      {symbol},
		"productType": {futuresProductType},
	}
	if err := e.get(ctx, "/mix/market/open-interest", params, &oi); err != nil {
		return nil, err
	}
	return &oi, nil
}
