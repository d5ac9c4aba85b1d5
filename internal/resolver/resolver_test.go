package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/hive"
)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open("file::memory:?cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIsValidISIN(t *testing.T) {
	require.True(t, isValidISIN("US67066G1040"))
	require.False(t, isValidISIN("US67066G104"))  // too short
	require.False(t, isValidISIN("us67066g1040")) // lowercase
	require.False(t, isValidISIN(""))
}

func TestIsTier1(t *testing.T) {
	require.True(t, isTier1(0, 0.005), "unknown weight treated as tier 1")
	require.True(t, isTier1(0.01, 0.005))
	require.False(t, isTier1(0.001, 0.005))
}

func TestResolveProviderISINShortCircuit(t *testing.T) {
	r := New(Config{}, newTestStore(t), nil, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{ProviderISIN: "US67066G1040"})

	require.True(t, res.Resolved())
	require.Equal(t, domain.SourceProvider, res.Source)
	require.Equal(t, domain.ConfidenceProvider, res.Confidence)
}

func TestResolveMalformedProviderISINFallsThroughToUnresolved(t *testing.T) {
	r := New(Config{NegativeCacheTTL: time.Hour}, newTestStore(t), nil, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{ProviderISIN: "NOT-AN-ISIN", Ticker: "ZZZZ"})

	require.False(t, res.Resolved())
	require.Equal(t, domain.ResolutionUnresolved, res.Status)
	require.Equal(t, "api_all_failed", res.Detail)
}

func TestResolveTier2GateSkipsWithoutNetworkCall(t *testing.T) {
	r := New(Config{Tier1WeightThreshold: 0.005}, newTestStore(t), nil, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{Ticker: "ZZZZ", Weight: 0.001})

	require.Equal(t, domain.ResolutionSkipped, res.Status)
	require.Equal(t, "tier2_skipped", res.Detail)
}

func TestResolveLocalCacheHitReturnsConfidence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertAsset(domain.Asset{
		ISIN: "US67066G1040", Name: "NVIDIA", AssetClass: domain.AssetClassStock,
		BaseCurrency: "USD", UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.UpsertListing(domain.Listing{
		ISIN: "US67066G1040", Ticker: "NVDA", Exchange: "NASDAQ", Currency: "USD",
	}))

	r := New(Config{Tier1WeightThreshold: 0.005}, store, nil, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{Ticker: "NVDA", Weight: 1})

	require.True(t, res.Resolved())
	require.Equal(t, domain.SourceLocalTicker, res.Source)
	require.Equal(t, domain.ConfidenceLocalCache, res.Confidence)
}

func TestResolveNegativeCacheShortCircuit(t *testing.T) {
	store := newTestStore(t)
	expires := time.Now().Add(time.Hour)
	require.NoError(t, store.PutCachedResolution(domain.ISINCacheEntry{
		Alias: "ZZZZ", AliasType: domain.AliasTypeTicker,
		ResolutionStatus: domain.ResolutionUnresolved, Source: "api_all_failed",
		ExpiresAt: &expires, UpdatedAt: time.Now().UTC(),
	}))

	r := New(Config{Tier1WeightThreshold: 0.005}, store, nil, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{Ticker: "ZZZZ", Weight: 1})

	require.False(t, res.Resolved())
	require.Equal(t, domain.ResolutionUnresolved, res.Status)
	require.Equal(t, "cached_negative", res.Detail)
}

func TestResolveHiveHitReturnsConfidenceCommunity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/v1/resolve-ticker", req.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"isin": "US67066G1040"})
	}))
	defer server.Close()

	hiveClient := hive.New(hive.Config{BaseURL: server.URL}, zerolog.Nop())
	r := New(Config{Tier1WeightThreshold: 0.005}, newTestStore(t), hiveClient, nil, nil, nil, zerolog.Nop())

	res := r.Resolve(context.Background(), Request{Ticker: "NVDA", Weight: 1})

	require.True(t, res.Resolved())
	require.Equal(t, domain.SourceHiveTicker, res.Source)
	require.Equal(t, domain.ConfidenceCommunity, res.Confidence)
}
