// Package api exposes the HTTP surface consumed by the GPT client
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/alert"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/exchange/bitget"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/feargreed"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/indicator"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

const (
	defaultCandleLimit    = 200
	defaultOrderbookLimit = 5
	shutdownTimeout       = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// Server wires the alert registry and market-data collaborators into
// an HTTP handler
type Server struct {
	registry  *alert.Registry
	exchange  *bitget.Exchange
	sentiment *feargreed.Service
	log       logger.Logger
	apiKey    string
	limiter   *rateLimiter
}

// NewServer creates an API server.
// All requests except /health require the X-API-Key header.
func NewServer(registry *alert.Registry, exchange *bitget.Exchange, sentiment *feargreed.Service,
	log logger.Logger, apiKey string) *Server {
	return &Server{
		registry:  registry,
		exchange:  exchange,
		sentiment: sentiment,
		log:       log,
		apiKey:    apiKey,
		limiter:   newRateLimiter(defaultRateLimit, defaultRateWindow),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /gpt-alerts/create", s.protect(s.handleCreateAlert))
	mux.Handle("GET /gpt-alerts/list", s.protect(s.handleListAlerts))
	mux.Handle("GET /gpt-alerts/stats", s.protect(s.handleStats))
	mux.Handle("GET /gpt-alerts/alert/{id}", s.protect(s.handleGetAlert))
	mux.Handle("DELETE /gpt-alerts/delete/{id}", s.protect(s.handleDeleteAlert))
	mux.Handle("POST /gpt-alerts/start", s.protect(s.handleStartMonitoring))
	mux.Handle("POST /gpt-alerts/stop", s.protect(s.handleStopMonitoring))

	mux.Handle("GET /candles", s.protect(s.handleCandles))
	mux.Handle("GET /orderbook", s.protect(s.handleOrderbook))
	mux.Handle("GET /indicators", s.protect(s.handleIndicators))
	mux.Handle("GET /feargreed", s.protect(s.handleFearGreed))
	mux.Handle("GET /perp/funding", s.protect(s.handleFundingRate))
	mux.Handle("GET /perp/oi", s.protect(s.handleOpenInterest))

	return mux
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	s.log.WithField("addr", addr).Info("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Middleware
// ----------

func (s *Server) protect(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.limiter.remaining(ip)))

		key := r.Header.Get("X-API-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}

		next(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Alert handlers
// --------------

type createAlertRequest struct {
	Symbol      string  `json:"symbol"`
	AlertType   string  `json:"alert_type"`
	TargetPrice float64 `json:"target_price"`
	Description string  `json:"description"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	condition, err := core.ParseCondition(req.AlertType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.registry.Create(req.Symbol, condition, req.TargetPrice, req.Description)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respond(w, http.StatusOK, map[string]string{
		"status":   "success",
		"alert_id": id,
		"message":  fmt.Sprintf("Alert created for %s %s @ $%g", strings.ToUpper(strings.TrimSpace(req.Symbol)), condition, req.TargetPrice),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filters := make([]core.AlertFilter, 0, 1)
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		filters = append(filters, core.WithSymbol(strings.ToUpper(symbol)))
	}

	s.respond(w, http.StatusOK, s.registry.Active(filters...))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.registry.Stats())
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, core.ErrAlertNotFound.Error())
		return
	}
	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.registry.Delete(id)
	s.respond(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Alert %s deleted", id),
	})
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	started := s.registry.StartMonitoring(context.WithoutCancel(r.Context()))
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "success",
		"started": started,
	})
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, _ *http.Request) {
	stopped := s.registry.StopMonitoring()
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "success",
		"stopped": stopped,
	})
}

// Market-data handlers
// --------------------

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "1h"
	}

	limit := queryInt(r, "limit", defaultCandleLimit)

	candles, err := s.exchange.CandlesByLimit(r.Context(), symbol, granularity, limit)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.respond(w, http.StatusOK, candles)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	book, err := s.exchange.Orderbook(r.Context(), symbol, queryInt(r, "limit", defaultOrderbookLimit))
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.respond(w, http.StatusOK, book)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "1h"
	}

	candles, err := s.exchange.CandlesByLimit(r.Context(), symbol, granularity, defaultCandleLimit)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	snapshot, err := indicator.Compute(symbol, candles)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respond(w, http.StatusOK, snapshot)
}

func (s *Server) handleFundingRate(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	rate, err := s.exchange.FundingRate(r.Context(), symbol)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.respond(w, http.StatusOK, rate)
}

func (s *Server) handleOpenInterest(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	oi, err := s.exchange.OpenInterest(r.Context(), symbol)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	s.respond(w, http.StatusOK, oi)
}

func (s *Server) handleFearGreed(w http.ResponseWriter, r *http.Request) {
	if limit := queryInt(r, "limit", 1); limit > 1 {
		readings, err := s.sentiment.History(r.Context(), limit)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		s.respond(w, http.StatusOK, readings)
		return
	}

	idx, err := s.sentiment.Current(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	s.respond(w, http.StatusOK, idx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
// -------

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"detail": message})
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnsupportedGranularity), errors.Is(err, core.ErrInvalidSymbol):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.WithError(err).Error("upstream request failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}
