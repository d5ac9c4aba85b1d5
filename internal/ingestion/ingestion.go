// Package ingestion implements the Ingestion & Schema gate (C9): the
// single seam between raw broker/CSV rows and the pipeline. Every
// inbound row is normalized and validated here; no downstream
// component may read positions or metadata that bypassed this gate
// (§4.9).
package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/domain"
)

// BrokerClient is the external collaborator that owns broker
// authentication and raw position retrieval (§1 Out of scope: "Broker
// authentication/session management"). sync_portfolio (§6) calls it
// then feeds the raw rows straight into IngestPositions; the engine
// never reaches into the broker session itself.
type BrokerClient interface {
	GetPortfolio(ctx context.Context) ([]RawPosition, error)
}

// Ingestor holds the component logger used to flag (not reject) rows
// that are syntactically valid but noteworthy: short positions and
// non-EUR currencies the engine will not convert (§1 Non-goals).
type Ingestor struct {
	log zerolog.Logger
}

// New builds an Ingestor.
func New(log zerolog.Logger) *Ingestor {
	return &Ingestor{log: log.With().Str("component", "ingestion").Logger()}
}

// RawPosition is one row as it arrives from a broker adapter or CSV
// import: field values may carry case/punctuation noise and the asset
// type is a free-text label rather than the canonical enum.
type RawPosition struct {
	ISIN      string    `json:"isin,omitempty"`
	Ticker    string    `json:"ticker,omitempty"`
	Name      string    `json:"name,omitempty"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Currency  string    `json:"currency,omitempty"`
	Source    string    `json:"source,omitempty"`
	AssetType string    `json:"asset_type,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RawAsset is one metadata row, e.g. from a community-store sync page
// or a manual enrichment file.
type RawAsset struct {
	ISIN         string
	Name         string
	AssetType    string
	BaseCurrency string
	Sector       string
	Geography    string
}

// RowError reports why one row was rejected; the row is skipped, the
// run continues (§7 ValidationError: "the row is skipped, not the run").
type RowError struct {
	Index int
	Err   *domain.ValidationError
}

// assetTypeAliases maps the free-text labels seen across broker
// exports and manual uploads to the canonical AssetClass enum. Keys
// are pre-normalized (upper-cased, punctuation stripped).
var assetTypeAliases = map[string]domain.AssetClass{
	"STOCK": domain.AssetClassStock, "STOCKS": domain.AssetClassStock,
	"EQUITY": domain.AssetClassStock, "EQUITIES": domain.AssetClassStock,
	"SHARE": domain.AssetClassStock, "SHARES": domain.AssetClassStock,
	"ETF": domain.AssetClassETF, "ETFS": domain.AssetClassETF,
	"FUND": domain.AssetClassETF, "INDEXFUND": domain.AssetClassETF,
	"CRYPTO": domain.AssetClassCrypto, "CRYPTOCURRENCY": domain.AssetClassCrypto,
	"COIN": domain.AssetClassCrypto,
	"CASH": domain.AssetClassCash, "MONEYMARKET": domain.AssetClassCash,
}

func normalizeCode(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeISIN(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// resolveAssetType maps a free-text asset type label to the canonical
// enum. An unrecognized label defaults to Stock, the most common and
// least consequential misclassification (it only affects whether the
// row enters the Decomposer's ETF set).
func resolveAssetType(raw string) domain.AssetClass {
	if class, ok := assetTypeAliases[normalizeCode(raw)]; ok {
		return class
	}
	return domain.AssetClassStock
}

// IngestPositions normalizes and validates a batch of raw positions
// into canonical positions ready for the Orchestrator (§4.9
// ingest_positions). Invalid rows are reported, not fatal; short
// positions and non-EUR currencies are flagged via a log line rather
// than rejected, since the engine treats prices as authoritative and
// performs no currency conversion (§1). A row with no ISIN at all is
// not malformed — ticker-only broker feeds pass through with ISIN left
// empty so the Pipeline Orchestrator's enrichment phase can resolve it
// with portfolio-level context (§4.8 phase 3); a row with neither ISIN
// nor ticker carries nothing to resolve on and is rejected.
func (ing *Ingestor) IngestPositions(rows []RawPosition) ([]domain.CanonicalPosition, []RowError) {
	out := make([]domain.CanonicalPosition, 0, len(rows))
	var errs []RowError

	for i, r := range rows {
		isin := normalizeISIN(r.ISIN)
		ticker := strings.TrimSpace(r.Ticker)
		if isin != "" && !domain.IsValidISIN(isin) {
			errs = append(errs, RowError{Index: i, Err: &domain.ValidationError{Field: "isin", Reason: "malformed ISIN: " + r.ISIN}})
			continue
		}
		if isin == "" && ticker == "" {
			errs = append(errs, RowError{Index: i, Err: &domain.ValidationError{Field: "isin", Reason: "row has neither ISIN nor ticker"}})
			continue
		}
		if r.UnitPrice < 0 {
			errs = append(errs, RowError{Index: i, Err: &domain.ValidationError{Field: "unit_price", Reason: "negative unit price"}})
			continue
		}

		currency := strings.ToUpper(strings.TrimSpace(r.Currency))
		pos := domain.CanonicalPosition{
			ISIN: isin, Ticker: ticker, Name: strings.TrimSpace(r.Name), Quantity: r.Quantity, UnitPrice: r.UnitPrice,
			Currency: currency, Source: r.Source,
			AssetType: resolveAssetType(r.AssetType), Timestamp: r.Timestamp,
		}

		if pos.Quantity < 0 {
			ing.log.Warn().Str("isin", isin).Float64("quantity", pos.Quantity).Msg("short position ingested")
		}
		if currency != "" && currency != "EUR" {
			ing.log.Warn().Str("isin", isin).Str("currency", currency).Msg("non-EUR row ingested without conversion")
		}

		out = append(out, pos)
	}

	return out, errs
}

// IngestMetadata normalizes and validates a batch of raw asset
// metadata rows before they reach the local cache's upsert surface
// (§4.9 ingest_metadata).
func (ing *Ingestor) IngestMetadata(rows []RawAsset) ([]domain.Asset, []RowError) {
	out := make([]domain.Asset, 0, len(rows))
	var errs []RowError

	for i, r := range rows {
		isin := normalizeISIN(r.ISIN)
		if !domain.IsValidISIN(isin) {
			errs = append(errs, RowError{Index: i, Err: &domain.ValidationError{Field: "isin", Reason: "malformed ISIN: " + r.ISIN}})
			continue
		}

		out = append(out, domain.Asset{
			ISIN: isin, Name: strings.TrimSpace(r.Name), AssetClass: resolveAssetType(r.AssetType),
			BaseCurrency: strings.ToUpper(strings.TrimSpace(r.BaseCurrency)), Sector: r.Sector, Geography: r.Geography,
			EnrichmentStatus: domain.EnrichmentPartial, UpdatedAt: time.Now().UTC(),
		})
	}

	return out, errs
}

// ToHoldingRow projects a canonical position into the DataFrame-shaped
// row the pipeline's later phases annotate with resolution provenance
// (§3 Holding row). An explicit ticker overrides the position's own
// (e.g. a broker-specific symbol the caller resolved separately); pass
// "" to keep the position's ticker.
func ToHoldingRow(p domain.CanonicalPosition, ticker string) domain.HoldingRow {
	if ticker == "" {
		ticker = p.Ticker
	}
	return domain.HoldingRow{
		ISIN: p.ISIN, Name: p.Name, Ticker: ticker, Quantity: p.Quantity, Price: p.UnitPrice,
		Currency: p.Currency, AssetClass: p.AssetType, Source: p.Source,
		ResolutionStatus: domain.ResolutionPending,
	}
}
