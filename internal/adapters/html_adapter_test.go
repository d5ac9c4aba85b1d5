package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

const holdingsPage = `<html><body>
<table>
<tr><th>Ticker</th><th>Name</th><th>Weight</th></tr>
<tr><td>NVDA</td><td>NVIDIA CORP</td><td>5.12%</td></tr>
<tr><td>AAPL</td><td>APPLE INC</td><td>4.88%</td></tr>
</table>
</body></html>`

func TestHTMLAdapterScrapesTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(holdingsPage))
	}))
	defer server.Close()

	a := NewHTMLAdapter(server.URL+"/%s", 0, zerolog.Nop())
	rows, err := a.FetchHoldings(context.Background(), "IE00B4L5Y983")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "NVDA", rows[0].Ticker)
	require.InDelta(t, 0.0512, rows[0].Weight, 0.0001)
}

func TestHTMLAdapterNoTableReturnsManualUploadRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>no table here</body></html>"))
	}))
	defer server.Close()

	a := NewHTMLAdapter(server.URL+"/%s", 0, zerolog.Nop())
	_, err := a.FetchHoldings(context.Background(), "IE00B4L5Y983")
	require.Error(t, err)
	var manualRequired *domain.ManualUploadRequiredError
	require.ErrorAs(t, err, &manualRequired)
}
