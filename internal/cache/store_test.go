package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("file::memory:?cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAssetAndGetAsset(t *testing.T) {
	store := newTestStore(t)

	asset := domain.Asset{
		ISIN:             "US67066G1040",
		Name:             "NVIDIA CORP",
		AssetClass:       domain.AssetClassStock,
		BaseCurrency:     "USD",
		EnrichmentStatus: domain.EnrichmentFull,
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.UpsertAsset(asset))

	got, err := store.GetAsset("US67066G1040")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "NVIDIA CORP", got.Name)
}

func TestGetAssetMissReturnsNilNoError(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetAsset("XX0000000000")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpsertListingThenGetISINByTickerRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertAsset(domain.Asset{
		ISIN: "US67066G1040", Name: "NVIDIA", AssetClass: domain.AssetClassStock,
		BaseCurrency: "USD", UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.UpsertListing(domain.Listing{
		ISIN: "US67066G1040", Ticker: "NVDA", Exchange: "NASDAQ", Currency: "USD",
	}))

	isin, err := store.GetISINByTicker("nvda")
	require.NoError(t, err)
	require.Equal(t, "US67066G1040", isin)
}

func TestUpsertAliasIncrementsContributorCount(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertAsset(domain.Asset{
		ISIN: "US67066G1040", Name: "NVIDIA", AssetClass: domain.AssetClassStock,
		BaseCurrency: "USD", UpdatedAt: time.Now().UTC(),
	}))

	alias := domain.Alias{Alias: "NVIDIA", ISIN: "US67066G1040", AliasType: domain.AliasTypeName, Source: "test", Confidence: 0.8}
	require.NoError(t, store.UpsertAlias(alias))
	require.NoError(t, store.UpsertAlias(alias))
	require.NoError(t, store.UpsertAlias(alias))

	var count int
	require.NoError(t, store.db.Conn().QueryRow(
		"SELECT contributor_count FROM aliases WHERE alias = ? AND isin = ?", "NVIDIA", "US67066G1040").Scan(&count))
	require.Equal(t, 3, count)
}

func TestNegativeCacheExpiryCleanup(t *testing.T) {
	store := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, store.PutCachedResolution(domain.ISINCacheEntry{
		Alias: "UNKNOWNCO", AliasType: domain.AliasTypeName,
		ResolutionStatus: domain.ResolutionUnresolved, Source: "api_all_failed",
		ExpiresAt: &past, UpdatedAt: time.Now().UTC(),
	}))

	n, err := store.CleanupExpiredNegativeCache()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	entry, err := store.GetCachedResolution("UNKNOWNCO", domain.AliasTypeName)
	require.NoError(t, err)
	require.Equal(t, domain.ResolutionStatus(""), entry.ResolutionStatus)
}

func TestIsStaleWithNoSyncYet(t *testing.T) {
	store := newTestStore(t)
	stale, err := store.IsStale(24 * time.Hour)
	require.NoError(t, err)
	require.True(t, stale)
}

func TestETFHoldingsCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	edges := []domain.ETFHoldingEdge{
		{ETFISIN: "IE00B4L5Y983", HoldingISIN: "US67066G1040", Weight: 0.05, Confidence: 0.9, LastUpdated: time.Now().UTC()},
	}
	require.NoError(t, store.PutETFHoldings("IE00B4L5Y983", edges))

	got, fresh, err := store.GetETFHoldings("IE00B4L5Y983", time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Len(t, got, 1)
	require.Equal(t, "US67066G1040", got[0].HoldingISIN)
}
