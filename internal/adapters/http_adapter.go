package adapters

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/domain"
)

// ResponseFormat tells httpAdapter how to decode the issuer's endpoint.
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "json"
	FormatCSV  ResponseFormat = "csv"
)

// httpAdapter is the tier-2 adapter (§4.5): a stable public HTTP
// endpoint per issuer, returning JSON or CSV. No issuer SDK exists
// anywhere in the retrieval pack, so this follows the teacher's
// hand-rolled net/http client pattern used for bespoke RPC surfaces
// (clients/tradernet) rather than reaching for an HTTP framework.
type httpAdapter struct {
	issuer      string
	urlTemplate string // fmt-style, takes the ETF ISIN, e.g. "https://.../holdings/%s.json"
	format      ResponseFormat
	downloadURL string // shown to the user in ManualUploadRequiredError
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewHTTPAdapter builds an issuer adapter backed by a single stable
// endpoint. timeout defaults to 15s (config Timeouts.Adapter).
func NewHTTPAdapter(issuer, urlTemplate, downloadURL string, format ResponseFormat, timeout time.Duration, log zerolog.Logger) Adapter {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &httpAdapter{
		issuer: issuer, urlTemplate: urlTemplate, format: format, downloadURL: downloadURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("adapter", issuer).Logger(),
	}
}

func (a *httpAdapter) Issuer() string { return a.issuer }

func (a *httpAdapter) FetchHoldings(ctx context.Context, etfISIN string) ([]RawHolding, error) {
	endpoint := fmt.Sprintf(a.urlTemplate, url.PathEscape(etfISIN))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", a.issuer, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Str("isin", etfISIN).Msg("http adapter request failed, manual upload required")
		return nil, a.manualRequired(etfISIN)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		a.log.Debug().Int("status", resp.StatusCode).Str("isin", etfISIN).Msg("http adapter endpoint rejected request")
		return nil, a.manualRequired(etfISIN)
	}

	switch a.format {
	case FormatJSON:
		return decodeJSONHoldings(resp.Body)
	case FormatCSV:
		return decodeCSVHoldings(resp.Body)
	default:
		return nil, fmt.Errorf("adapter %s: unknown response format %q", a.issuer, a.format)
	}
}

func (a *httpAdapter) manualRequired(etfISIN string) error {
	return &domain.ManualUploadRequiredError{ISIN: etfISIN, Provider: a.issuer, DownloadURL: a.downloadURL}
}

func decodeJSONHoldings(r io.Reader) ([]RawHolding, error) {
	var raw []struct {
		Ticker   string  `json:"ticker"`
		Name     string  `json:"name"`
		Weight   float64 `json:"weight"`
		ISIN     string  `json:"isin,omitempty"`
		Sector   string  `json:"sector,omitempty"`
		Country  string  `json:"country,omitempty"`
		Currency string  `json:"currency,omitempty"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode holdings JSON: %w", err)
	}
	out := make([]RawHolding, len(raw))
	for i, h := range raw {
		out[i] = RawHolding{Ticker: h.Ticker, Name: h.Name, Weight: h.Weight, ISIN: h.ISIN, Sector: h.Sector, Country: h.Country, Currency: h.Currency}
	}
	return out, nil
}

func decodeCSVHoldings(r io.Reader) ([]RawHolding, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var out []RawHolding
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		weight, _ := strconv.ParseFloat(strings.TrimSpace(record[col["weight"]]), 64)
		row := RawHolding{Ticker: record[col["ticker"]], Name: record[col["name"]], Weight: weight}
		if i, ok := col["isin"]; ok {
			row.ISIN = record[i]
		}
		out = append(out, row)
	}
	return out, nil
}
