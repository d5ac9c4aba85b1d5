// Package adapters implements the Adapter Registry (C5): one adapter
// per ETF issuer, each resolving holdings through a fixed cascade of
// manual upload, stable HTTP endpoint, and HTML scrape fallback before
// giving up and asking the caller to supply a manual file (§4.5).
package adapters

import (
	"context"
)

// Issuer identifiers, derived from cached source metadata or the ETF
// ISIN prefix when no cached source exists.
const (
	IssuerIShares   = "ishares"
	IssuerVanguard  = "vanguard"
	IssuerAmundi    = "amundi"
	IssuerXtrackers = "xtrackers"
	IssuerVanEck    = "vaneck"
	IssuerSPDR      = "spdr"
	IssuerInvesco   = "invesco"
	IssuerUnknown   = "unknown"
)

// RawHolding is one row of an adapter's output before it reaches the
// resolver. ticker/name/weight are mandatory per §4.5; the rest are
// best-effort.
type RawHolding struct {
	Ticker   string
	Name     string
	Weight   float64
	ISIN     string
	Sector   string
	Country  string
	Currency string
}

// Adapter fetches the holdings of one ETF. It raises
// *domain.ManualUploadRequiredError when no automated source can serve
// the request — never a bare error for that case, so the orchestrator
// can distinguish "needs a human" from "transient failure".
type Adapter interface {
	Issuer() string
	FetchHoldings(ctx context.Context, etfISIN string) ([]RawHolding, error)
}

// isinPrefixIssuers maps the 2-letter country/registrar prefix of an
// ETF's ISIN to its most likely issuer when no cached source is known
// yet. This is a heuristic of last resort (§4.6 "from cached source
// then ISIN prefix") — it is deliberately coarse, since the definitive
// signal is the cached `source` column on the etf_holdings cache table.
var isinPrefixIssuers = map[string]string{
	"IE00": IssuerIShares,
	"IE0B": IssuerXtrackers,
	"LU00": IssuerAmundi,
	"LU01": IssuerXtrackers,
	"LU02": IssuerVanEck,
	"US46": IssuerIShares,
	"US92": IssuerSPDR,
	"US00": IssuerVanguard,
}

// IssuerFromISINPrefix applies the §4.6 ISIN-prefix heuristic. Returns
// IssuerUnknown when the 4-character prefix isn't in the known map.
func IssuerFromISINPrefix(isin string) string {
	if len(isin) < 4 {
		return IssuerUnknown
	}
	if issuer, ok := isinPrefixIssuers[isin[:4]]; ok {
		return issuer
	}
	return IssuerUnknown
}
