package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllJobs(t *testing.T) {
	reg := NewRegistry(&fakeManualStore{uploads: map[string]*ManualUpload{}})
	reg.Register(&fakeAdapter{issuer: IssuerIShares, holdings: []RawHolding{{Ticker: "NVDA", Weight: 0.05}}})
	reg.Register(&fakeAdapter{issuer: IssuerVanguard, holdings: []RawHolding{{Ticker: "AAPL", Weight: 0.04}}})

	pool := NewPool(2)
	jobs := []FetchJob{
		{ETFISIN: "IE00B4L5Y983", Issuer: IssuerIShares},
		{ETFISIN: "US9229087690", Issuer: IssuerVanguard},
	}

	results := pool.Run(context.Background(), reg, jobs)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Len(t, r.Holdings, 1)
	}
}
