package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

type fakeManualStore struct {
	uploads map[string]*ManualUpload
}

func (f *fakeManualStore) GetManualUpload(etfISIN string) (*ManualUpload, error) {
	return f.uploads[etfISIN], nil
}

type fakeAdapter struct {
	issuer   string
	holdings []RawHolding
	err      error
}

func (f *fakeAdapter) Issuer() string { return f.issuer }
func (f *fakeAdapter) FetchHoldings(ctx context.Context, etfISIN string) ([]RawHolding, error) {
	return f.holdings, f.err
}

func TestRegistryPrefersManualUpload(t *testing.T) {
	manual := &fakeManualStore{uploads: map[string]*ManualUpload{
		"IE00B4L5Y983": {Path: "holdings.json", Reader: strings.NewReader(`[{"ticker":"NVDA","name":"NVIDIA","weight":0.05}]`)},
	}}
	reg := NewRegistry(manual)
	reg.Register(&fakeAdapter{issuer: IssuerIShares, holdings: []RawHolding{{Ticker: "SHOULD_NOT_BE_USED"}}})

	rows, err := reg.FetchHoldings(context.Background(), "IE00B4L5Y983", IssuerIShares)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "NVDA", rows[0].Ticker)
}

func TestRegistryFallsBackToIssuerAdapter(t *testing.T) {
	reg := NewRegistry(&fakeManualStore{uploads: map[string]*ManualUpload{}})
	reg.Register(&fakeAdapter{issuer: IssuerIShares, holdings: []RawHolding{{Ticker: "NVDA", Weight: 0.05}}})

	rows, err := reg.FetchHoldings(context.Background(), "IE00B4L5Y983", IssuerIShares)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRegistryFallsBackToHTMLWhenIssuerAdapterNeedsManualUpload(t *testing.T) {
	reg := NewRegistry(&fakeManualStore{uploads: map[string]*ManualUpload{}})
	reg.Register(&fakeAdapter{issuer: IssuerIShares, err: &domain.ManualUploadRequiredError{ISIN: "IE00B4L5Y983", Provider: IssuerIShares}})
	reg.RegisterFallback(&fakeAdapter{issuer: IssuerUnknown, holdings: []RawHolding{{Ticker: "NVDA", Weight: 0.05}}})

	rows, err := reg.FetchHoldings(context.Background(), "IE00B4L5Y983", IssuerIShares)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRegistryReturnsManualUploadRequiredWhenNothingWorks(t *testing.T) {
	reg := NewRegistry(&fakeManualStore{uploads: map[string]*ManualUpload{}})

	_, err := reg.FetchHoldings(context.Background(), "IE00B4L5Y983", IssuerIShares)
	require.Error(t, err)
	var manualRequired *domain.ManualUploadRequiredError
	require.ErrorAs(t, err, &manualRequired)
}
