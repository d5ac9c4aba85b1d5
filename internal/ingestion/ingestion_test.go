package ingestion

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

func TestIngestPositionsNormalizesAndValidates(t *testing.T) {
	ing := New(zerolog.Nop())
	rows := []RawPosition{
		{ISIN: " us67066g1040 ", Name: " NVIDIA Corp ", Quantity: 10, UnitPrice: 120.5, Currency: " usd ", AssetType: "stocks"},
		{ISIN: "not-an-isin", Name: "Bad Row", Quantity: 1, UnitPrice: 1},
		{ISIN: "US0378331005", Name: "Apple", Quantity: 5, UnitPrice: -1},
	}

	positions, errs := ing.IngestPositions(rows)

	require.Len(t, positions, 1)
	require.Len(t, errs, 2)
	require.Equal(t, "US67066G1040", positions[0].ISIN)
	require.Equal(t, "NVIDIA Corp", positions[0].Name)
	require.Equal(t, "USD", positions[0].Currency)
	require.Equal(t, domain.AssetClassStock, positions[0].AssetType)
}

func TestIngestPositionsAssetTypeAliasesMapToCanonicalEnum(t *testing.T) {
	ing := New(zerolog.Nop())
	rows := []RawPosition{
		{ISIN: "US67066G1040", Quantity: 1, UnitPrice: 1, AssetType: "Index Fund"},
		{ISIN: "US0378331005", Quantity: 1, UnitPrice: 1, AssetType: "crypto-currency"},
		{ISIN: "IE00B4L5Y983", Quantity: 1, UnitPrice: 1, AssetType: "Money Market"},
		{ISIN: "LU0274208692", Quantity: 1, UnitPrice: 1, AssetType: "totally unknown label"},
	}

	positions, errs := ing.IngestPositions(rows)

	require.Empty(t, errs)
	require.Equal(t, domain.AssetClassETF, positions[0].AssetType)
	require.Equal(t, domain.AssetClassCrypto, positions[1].AssetType)
	require.Equal(t, domain.AssetClassCash, positions[2].AssetType)
	require.Equal(t, domain.AssetClassStock, positions[3].AssetType, "unrecognized label defaults to Stock")
}

func TestIngestPositionsPermitsShortQuantity(t *testing.T) {
	ing := New(zerolog.Nop())
	positions, errs := ing.IngestPositions([]RawPosition{
		{ISIN: "US67066G1040", Quantity: -5, UnitPrice: 10},
	})

	require.Empty(t, errs)
	require.Len(t, positions, 1)
	require.Equal(t, -5.0, positions[0].Quantity)
}

func TestIngestPositionsAcceptsTickerOnlyRowPendingEnrichment(t *testing.T) {
	ing := New(zerolog.Nop())
	positions, errs := ing.IngestPositions([]RawPosition{
		{Ticker: "NVDA US", Name: "NVIDIA Corp", Quantity: 1, UnitPrice: 120},
		{Quantity: 1, UnitPrice: 1}, // neither ISIN nor ticker
	})

	require.Len(t, positions, 1)
	require.Len(t, errs, 1)
	require.Empty(t, positions[0].ISIN)
	require.Equal(t, "NVDA US", positions[0].Ticker)
}

func TestIngestMetadataValidatesISINShape(t *testing.T) {
	ing := New(zerolog.Nop())
	assets, errs := ing.IngestMetadata([]RawAsset{
		{ISIN: "US67066G1040", Name: "NVIDIA", AssetType: "stock", BaseCurrency: "usd"},
		{ISIN: "bad"},
	})

	require.Len(t, assets, 1)
	require.Len(t, errs, 1)
	require.Equal(t, "USD", assets[0].BaseCurrency)
	require.Equal(t, domain.EnrichmentPartial, assets[0].EnrichmentStatus)
}

func TestToHoldingRowProjectsPendingResolution(t *testing.T) {
	pos := domain.CanonicalPosition{ISIN: "US67066G1040", Name: "NVIDIA", Quantity: 1, UnitPrice: 100, Currency: "USD", Timestamp: time.Now()}

	row := ToHoldingRow(pos, "NVDA")

	require.Equal(t, domain.ResolutionPending, row.ResolutionStatus)
	require.Equal(t, "NVDA", row.Ticker)
	require.Equal(t, 100.0, row.MarketValue())
}
