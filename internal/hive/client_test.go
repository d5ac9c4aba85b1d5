package hive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

func TestResolveTickerHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/resolve-ticker", r.URL.Path)
		require.Equal(t, "NVDA", r.URL.Query().Get("ticker"))
		json.NewEncoder(w).Encode(map[string]string{"isin": "US67066G1040"})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, zerolog.Nop())
	isin, err := client.ResolveTicker(context.Background(), "NVDA", "")
	require.NoError(t, err)
	require.Equal(t, "US67066G1040", isin)
}

func TestResolveTickerMissReturnsEmptyNoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"isin": ""})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, zerolog.Nop())
	isin, err := client.ResolveTicker(context.Background(), "ZZZZ", "")
	require.NoError(t, err)
	require.Equal(t, "", isin)
}

func TestDisabledClientDegradesToNetworkError(t *testing.T) {
	client := New(Config{}, zerolog.Nop())
	require.False(t, client.Enabled())

	_, err := client.ResolveTicker(context.Background(), "NVDA", "")
	require.Error(t, err)
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestRateLimitedResponseMapsToRateLimitedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, zerolog.Nop())
	_, err := client.ResolveTicker(context.Background(), "NVDA", "")
	require.Error(t, err)
	var rateErr *domain.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
}

func TestBatchResolveTickersChunking(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]map[string]string{"results": {"A": "US0000000001"}})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, zerolog.Nop())
	tickers := make([]string, 250)
	for i := range tickers {
		tickers[i] = "T"
	}
	result, err := client.BatchResolveTickers(context.Background(), tickers, 100)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, "US0000000001", result["A"])
}
