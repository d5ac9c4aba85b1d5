package adapters

import (
	"context"
	"fmt"

	"github.com/aristath/exposure-engine/internal/domain"
)

// Registry resolves an ETF's holdings through the fixed §4.5 cascade:
// manual upload, then the issuer's HTTP adapter, then the HTML
// fallback, then ManualUploadRequired.
type Registry struct {
	manual   ManualStore
	adapters map[string]Adapter
	fallback Adapter
}

// NewRegistry builds an empty registry; register issuer adapters with
// Register, and the tier-3 fallback with RegisterFallback.
func NewRegistry(manual ManualStore) *Registry {
	return &Registry{manual: manual, adapters: make(map[string]Adapter)}
}

// Register adds an issuer-specific adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Issuer()] = a
}

// RegisterFallback sets the tier-3 HTML-scrape adapter used for the
// "unknown" issuer and as a last resort when no issuer-specific
// adapter exists.
func (r *Registry) RegisterFallback(a Adapter) {
	r.fallback = a
}

// FetchHoldings runs the cascade for one ETF. issuer should come from
// the Decomposer's cached-source-then-ISIN-prefix detection (§4.6); an
// empty or unrecognized issuer falls straight to the HTML fallback.
func (r *Registry) FetchHoldings(ctx context.Context, etfISIN, issuer string) ([]RawHolding, error) {
	if r.manual != nil {
		upload, err := r.manual.GetManualUpload(etfISIN)
		if err != nil {
			return nil, fmt.Errorf("failed to check manual upload store for %s: %w", etfISIN, err)
		}
		if upload != nil {
			return ParseManualUpload(*upload)
		}
	}

	if a, ok := r.adapters[issuer]; ok {
		holdings, err := a.FetchHoldings(ctx, etfISIN)
		if err == nil {
			return holdings, nil
		}
		if _, isManualRequired := err.(*domain.ManualUploadRequiredError); !isManualRequired {
			return nil, err
		}
		// Adapter itself asked for manual upload; still worth trying the
		// HTML fallback before giving up entirely.
	}

	if r.fallback != nil {
		holdings, err := r.fallback.FetchHoldings(ctx, etfISIN)
		if err == nil {
			return holdings, nil
		}
		return nil, err
	}

	return nil, &domain.ManualUploadRequiredError{ISIN: etfISIN, Provider: issuer}
}
