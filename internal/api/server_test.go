package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	zl "github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/alert"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/exchange/bitget"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/feargreed"
	zerolog "github.com/ghiemer/crypto-analyzer-gpt/pkg/logger/zerolog"
)

const testAPIKey = "secret-test-key"

// upstream serves canned Bitget and alternative.me responses
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/spot/market/tickers":
			w.Write([]byte(`{"code":"00000","msg":"success","data":[{"symbol":"BTCUSDT","lastPr":"68000"}]}`))
		case "/spot/market/merge-depth":
			w.Write([]byte(`{"code":"00000","msg":"success","data":{"bids":[["68000","1"]],"asks":[["68010","1"]]}}`))
		case "/mix/market/current-fund-rate":
			w.Write([]byte(`{"code":"00000","msg":"success","data":[{"symbol":"BTCUSDT","fundingRate":"0.000075"}]}`))
		case "/mix/market/open-interest":
			w.Write([]byte(`{"code":"00000","msg":"success","data":{"openInterestList":[{"symbol":"BTCUSDT","size":"51234.2"}],"ts":"1717200000000"}}`))
		case "/":
			w.Write([]byte(`{"data":[{"value":"72","value_classification":"Greed","timestamp":"1717200000"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testServer(t *testing.T) *Server {
	t.Helper()

	nop := zl.Nop()
	log := zerolog.NewAdapter(&nop)

	backend := upstream(t)
	exchange := bitget.NewExchange(log, bitget.Config{BaseURL: backend.URL})
	sentiment := feargreed.NewService(feargreed.Config{BaseURL: backend.URL})

	registry := alert.NewRegistry(exchange, nil, log, core.MonitorSettings{})

	return NewServer(registry, exchange, sentiment, log, testAPIKey)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string, withKey bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthIsUnauthenticated(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RejectsMissingAPIKey(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/gpt-alerts/list", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RejectsWrongAPIKey(t *testing.T) {
	handler := testServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/gpt-alerts/list", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CreateListDeleteAlert(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodPost, "/gpt-alerts/create",
		`{"symbol":"btcusdt","alert_type":"price_above","target_price":70000,"description":"resistance"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "success", created["status"])
	require.NotEmpty(t, created["alert_id"])

	rec = doRequest(t, handler, http.MethodGet, "/gpt-alerts/list", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var alerts []core.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTCUSDT", alerts[0].Symbol)
	assert.Equal(t, core.PriceAbove, alerts[0].Condition)

	rec = doRequest(t, handler, http.MethodGet, "/gpt-alerts/alert/"+created["alert_id"], "", true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, "/gpt-alerts/delete/"+created["alert_id"], "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/gpt-alerts/alert/"+created["alert_id"], "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateAlertValidation(t *testing.T) {
	handler := testServer(t).Handler()

	tt := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown condition", `{"symbol":"BTCUSDT","alert_type":"sideways","target_price":1}`},
		{"non positive price", `{"symbol":"BTCUSDT","alert_type":"price_above","target_price":0}`},
		{"empty symbol", `{"symbol":"  ","alert_type":"price_above","target_price":100}`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPost, "/gpt-alerts/create", tc.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_Stats(t *testing.T) {
	handler := testServer(t).Handler()

	doRequest(t, handler, http.MethodPost, "/gpt-alerts/create",
		`{"symbol":"BTCUSDT","alert_type":"price_above","target_price":70000}`, true)

	rec := doRequest(t, handler, http.MethodGet, "/gpt-alerts/stats", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats alert.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalActive)
	assert.Equal(t, 1, stats.BySymbol["BTCUSDT"])
}

func TestServer_StartStopMonitoring(t *testing.T) {
	server := testServer(t)
	handler := server.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/gpt-alerts/start", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, true, started["started"])

	rec = doRequest(t, handler, http.MethodPost, "/gpt-alerts/stop", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var stopped map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.Equal(t, true, stopped["stopped"])
}

func TestServer_Orderbook(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/orderbook?symbol=BTCUSDT", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var book bitget.Orderbook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	assert.Equal(t, 68000.0, book.BestBid)
	assert.Equal(t, 68010.0, book.BestAsk)
}

func TestServer_OrderbookRequiresSymbol(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/orderbook", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PerpFunding(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/perp/funding?symbol=btcusdt", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var rate bitget.FundingRate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rate))
	assert.Equal(t, "0.000075", rate.FundingRate)

	rec = doRequest(t, handler, http.MethodGet, "/perp/funding", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PerpOpenInterest(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/perp/oi?symbol=BTCUSDT", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var oi bitget.OpenInterest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &oi))
	require.Len(t, oi.OpenInterestList, 1)
	assert.Equal(t, "51234.2", oi.OpenInterestList[0].Size)

	rec = doRequest(t, handler, http.MethodGet, "/perp/oi", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_FearGreed(t *testing.T) {
	handler := testServer(t).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/feargreed", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var idx feargreed.Index
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &idx))
	assert.Equal(t, 72, idx.Value)
	assert.Equal(t, "Greed", idx.Classification)
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(3, time.Minute)

	current := time.Now()
	limiter.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, limiter.allow("1.2.3.4"))
	assert.Equal(t, 0, limiter.remaining("1.2.3.4"))

	// other clients are unaffected
	assert.True(t, limiter.allow("5.6.7.8"))

	// window slides
	current = current.Add(2 * time.Minute)
	assert.True(t, limiter.allow("1.2.3.4"))
	assert.Equal(t, 2, limiter.remaining("1.2.3.4"))
}
