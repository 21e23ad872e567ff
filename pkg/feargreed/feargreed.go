// Package feargreed fetches the crypto Fear & Greed index published by
// alternative.me and caches it for an hour.
package feargreed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

const (
	// DefaultBaseURL is the alternative.me Fear & Greed endpoint
	DefaultBaseURL = "https://api.alternative.me/fng/"

	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Hour
)

// Index is a single Fear & Greed reading
type Index struct {
	Value          int       `json:"value"`
	Classification string    `json:"value_classification"`
	Timestamp      time.Time `json:"timestamp"`
}

// Service fetches the index with an in-process TTL cache
type Service struct {
	baseURL  string
	client   *http.Client
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    *Index
	fetchedAt time.Time

	now func() time.Time
}

// Config holds the service configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	Client   *http.Client
}

// NewService creates a Fear & Greed service
func NewService(cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Service{
		baseURL:  cfg.BaseURL,
		client:   cfg.Client,
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
	}
}

// Current returns the latest index reading, served from cache while fresh
func (s *Service) Current(ctx context.Context) (*Index, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.fetchedAt) < s.cacheTTL {
		idx := *s.cached
		s.mu.Unlock()
		return &idx, nil
	}
	s.mu.Unlock()

	readings, err := s.fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: fear greed index returned no data", core.ErrUpstream)
	}

	s.mu.Lock()
	s.cached = &readings[0]
	s.fetchedAt = s.now()
	s.mu.Unlock()

	idx := readings[0]
	return &idx, nil
}

// History returns up to limit readings, newest first. History bypasses
// the cache.
func (s *Service) History(ctx context.Context, limit int) ([]Index, error) {
	return s.fetch(ctx, limit)
}

func (s *Service) fetch(ctx context.Context, limit int) ([]Index, error) {
	endpoint := s.baseURL
	if limit > 1 {
		endpoint += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: fear greed index returned %d", core.ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %s", core.ErrUpstream, err)
	}

	var payload struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
			Timestamp      string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: unexpected response format: %s", core.ErrUpstream, err)
	}

	readings := make([]Index, 0, len(payload.Data))
	for _, entry := range payload.Data {
		value, err := strconv.Atoi(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid index value %q", core.ErrUpstream, entry.Value)
		}
		ts, err := strconv.ParseInt(entry.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timestamp %q", core.ErrUpstream, entry.Timestamp)
		}

		readings = append(readings, Index{
			Value:          value,
			Classification: entry.Classification,
			Timestamp:      time.Unix(ts, 0).UTC(),
		})
	}

	return readings, nil
}
