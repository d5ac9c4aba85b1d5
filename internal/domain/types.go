// Package domain holds the value types and interfaces shared across
// component boundaries (C1-C9), kept here to avoid import cycles the
// way the teacher's own domain package breaks cycles between its
// portfolio/cash_flows/trading packages.
package domain

import "time"

// AssetClass enumerates the kinds of position the engine understands.
type AssetClass string

const (
	AssetClassStock  AssetClass = "Stock"
	AssetClassETF    AssetClass = "ETF"
	AssetClassCrypto AssetClass = "Crypto"
	AssetClassCash   AssetClass = "Cash"
)

// EnrichmentStatus tracks how complete an Asset record is.
type EnrichmentStatus string

const (
	EnrichmentStub    EnrichmentStatus = "stub"
	EnrichmentPartial EnrichmentStatus = "partial"
	EnrichmentFull    EnrichmentStatus = "full"
)

// ResolutionStatus is the outcome of a resolve attempt.
type ResolutionStatus string

const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionUnresolved ResolutionStatus = "unresolved"
	ResolutionSkipped    ResolutionStatus = "skipped"
	ResolutionPending    ResolutionStatus = "pending"
)

// AliasType distinguishes the kind of string an alias row normalizes.
type AliasType string

const (
	AliasTypeName         AliasType = "name"
	AliasTypeAbbreviation AliasType = "abbreviation"
	AliasTypeLocalName    AliasType = "local_name"
	AliasTypeTicker       AliasType = "ticker"
)

// CurrencySource records whether a currency was given explicitly by a
// source or inferred from an exchange/ticker suffix (§4.1 Bloomberg map).
type CurrencySource string

const (
	CurrencySourceExplicit CurrencySource = "explicit"
	CurrencySourceInferred CurrencySource = "inferred"
)

// FormatType is the ticker shape detected by the Normalizer (§4.1).
type FormatType string

const (
	FormatBloomberg FormatType = "bloomberg"
	FormatReuters   FormatType = "reuters"
	FormatYahooDash FormatType = "yahoo_dash"
	FormatNumeric   FormatType = "numeric"
	FormatPlain     FormatType = "plain"
)

// Resolution source tags, fixed by the confidence ladder in §4.4.
const (
	SourceProvider    = "provider"
	SourceLocalTicker = "local_cache_ticker"
	SourceLocalAlias  = "local_cache_alias"
	SourceHiveTicker  = "hive_ticker"
	SourceHiveAlias   = "hive_alias"
	SourceManual      = "manual"
	SourceWikidata    = "api_wikidata"
	SourceFinnhub     = "api_finnhub"
	SourceYahoo       = "api_yahoo"
)

// Confidence ladder constants (§4.4). The resolver never emits a value
// outside this fixed set; the aggregator treats them as ordered.
const (
	ConfidenceProvider    = 1.00
	ConfidenceLocalCache  = 0.95
	ConfidenceCommunity   = 0.90
	ConfidenceManual      = 0.85
	ConfidenceWikidata    = 0.80
	ConfidenceFinnhub     = 0.75
	ConfidenceYahoo      = 0.70
	ConfidenceUnresolved = 0.0
)

// CanonicalPosition is the ingestion DTO (§3). ISIN is empty only when
// the source row carried no ISIN at all (ticker-only broker feeds);
// such positions reach the Pipeline Orchestrator's enrichment phase
// instead of the resolver's provider-ISIN short-circuit (§4.8 phase 3).
type CanonicalPosition struct {
	ISIN      string
	Ticker    string
	Name      string
	Quantity  float64
	UnitPrice float64
	Currency  string
	Source    string
	AssetType AssetClass
	Timestamp time.Time
}

// MarketValue is a derived property, never stored (§3, §8).
func (p CanonicalPosition) MarketValue() float64 {
	return p.Quantity * p.UnitPrice
}

// IsValidISIN checks the shape invariant shared by CanonicalPosition
// and every identifier the resolver treats as a provider ISIN: 12
// uppercase characters, the first two letters, the next nine letters or
// digits, and the last a digit (the check digit, whose value is not
// verified) (§3).
func IsValidISIN(isin string) bool {
	if len(isin) != 12 {
		return false
	}
	for i, r := range isin {
		switch {
		case i < 2:
			if r < 'A' || r > 'Z' {
				return false
			}
		case i < 11:
			if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		default:
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// HoldingRow is the DataFrame-shaped row after ingestion (§3), carrying
// resolution provenance columns alongside the canonical ones.
type HoldingRow struct {
	ISIN        string
	Name        string
	Ticker      string
	Quantity    float64
	Price       float64
	Currency    string
	AssetClass  AssetClass
	Source      string

	ResolutionStatus     ResolutionStatus
	ResolutionDetail     string
	ResolutionSource     string
	ResolutionConfidence float64
}

// MarketValue mirrors CanonicalPosition.MarketValue for holding rows
// that never carried an explicit market_value field.
func (h HoldingRow) MarketValue() float64 {
	return h.Quantity * h.Price
}

// Asset is the identity record keyed by ISIN (§3), also the
// community store's `assets` table row shape over the wire (§6).
type Asset struct {
	ISIN             string           `json:"isin"`
	Name             string           `json:"name"`
	AssetClass       AssetClass       `json:"asset_class"`
	BaseCurrency     string           `json:"base_currency"`
	Sector           string           `json:"sector,omitempty"`
	Geography        string           `json:"geography,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Listing maps a ticker at an exchange to an ISIN (§3), the `listings`
// table row shape.
type Listing struct {
	ISIN     string `json:"isin"`
	Ticker   string `json:"ticker"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// Alias is a normalized name/abbreviation mapped to an ISIN (§3), the
// `aliases` table row shape.
type Alias struct {
	Alias            string         `json:"alias"`
	ISIN             string         `json:"isin"`
	AliasType        AliasType      `json:"alias_type"`
	Language         string         `json:"language,omitempty"`
	Source           string         `json:"source"`
	Confidence       float64        `json:"confidence"`
	Currency         string         `json:"currency,omitempty"`
	Exchange         string         `json:"exchange,omitempty"`
	CurrencySource   CurrencySource `json:"currency_source,omitempty"`
	ContributorHash  string         `json:"contributor_hash,omitempty"`
	ContributorCount int            `json:"contributor_count"`
}

// ETFHoldingEdge is one underlying of an ETF with its weight (§3), the
// `etf_holdings` table row shape.
type ETFHoldingEdge struct {
	ETFISIN     string    `json:"etf_isin"`
	HoldingISIN string    `json:"holding_isin"`
	Weight      float64   `json:"weight"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
	// Source records which issuer adapter (or "hive") produced this
	// edge, so the Decomposer can detect an ETF's provider from cached
	// source before falling back to the ISIN-prefix heuristic (§4.6).
	Source string `json:"source,omitempty"`
}

// ISINCacheEntry is the local-only positive/negative resolution cache
// row (§3). Negative entries carry ExpiresAt; positive entries don't
// expire but may be invalidated by sync.
type ISINCacheEntry struct {
	Alias            string
	AliasType        AliasType
	ISIN             string // empty for negative entries
	Confidence       float64
	Source           string
	ResolutionStatus ResolutionStatus
	ExpiresAt        *time.Time
	UpdatedAt        time.Time
}

// FormatLogEntry is an append-only observability row (§3).
type FormatLogEntry struct {
	AliasExample string
	FormatType   FormatType
	APISource    string
	Success      bool
	AttemptedAt  time.Time
}

// ResolutionResult is the value object the resolver returns (§3, §4.4).
type ResolutionResult struct {
	ISIN       string
	Status     ResolutionStatus
	Detail     string
	Source     string
	Confidence float64
}

// Resolved reports whether the result carries a usable ISIN.
func (r ResolutionResult) Resolved() bool {
	return r.Status == ResolutionResolved && r.ISIN != ""
}
