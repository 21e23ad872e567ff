package feargreed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
)

const sampleResponse = `{"name":"Fear and Greed Index","data":[
	{"value":"72","value_classification":"Greed","timestamp":"1717200000","time_until_update":"3600"}
]}`

func TestService_Current(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	service := NewService(Config{BaseURL: server.URL})

	idx, err := service.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 72, idx.Value)
	assert.Equal(t, "Greed", idx.Classification)
	assert.Equal(t, time.Unix(1717200000, 0).UTC(), idx.Timestamp)
}

func TestService_CurrentServesFromCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	service := NewService(Config{BaseURL: server.URL, CacheTTL: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := service.Current(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_CurrentRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	service := NewService(Config{BaseURL: server.URL, CacheTTL: time.Hour})

	current := time.Now()
	service.now = func() time.Time { return current }

	_, err := service.Current(context.Background())
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, err = service.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestService_History(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[
			{"value":"72","value_classification":"Greed","timestamp":"1717200000"},
			{"value":"55","value_classification":"Neutral","timestamp":"1717113600"}
		]}`))
	}))
	defer server.Close()

	service := NewService(Config{BaseURL: server.URL})

	readings, err := service.History(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "Neutral", readings[1].Classification)
}

func TestService_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	service := NewService(Config{BaseURL: server.URL})

	_, err := service.Current(context.Background())
	assert.ErrorIs(t, err, core.ErrUpstream)
}
