package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/aristath/exposure-engine/internal/domain"
)

// htmlAdapter is the tier-3 fallback (§4.5): scrape a holdings table
// out of a public fund page when no JSON/CSV endpoint is known. It
// backs the "unknown" issuer and is the last automated step before
// ManualUploadRequired. No headless browser is used — only the static
// markup returned by a plain GET, per §4.5's "no headless browsers in
// the core" constraint.
type htmlAdapter struct {
	pageURLTemplate string
	httpClient      *http.Client
	log             zerolog.Logger
}

// NewHTMLAdapter builds the unknown-issuer fallback adapter.
func NewHTMLAdapter(pageURLTemplate string, timeout time.Duration, log zerolog.Logger) Adapter {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &htmlAdapter{
		pageURLTemplate: pageURLTemplate,
		httpClient:      &http.Client{Timeout: timeout},
		log:             log.With().Str("adapter", IssuerUnknown).Logger(),
	}
}

func (a *htmlAdapter) Issuer() string { return IssuerUnknown }

func (a *htmlAdapter) FetchHoldings(ctx context.Context, etfISIN string) ([]RawHolding, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(a.pageURLTemplate, etfISIN), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build html adapter request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil || resp.StatusCode >= 400 {
		a.log.Debug().Err(err).Str("isin", etfISIN).Msg("html fallback fetch failed, manual upload required")
		return nil, &domain.ManualUploadRequiredError{ISIN: etfISIN, Provider: IssuerUnknown}
	}
	defer resp.Body.Close()

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html response: %w", err)
	}

	rows := extractHoldingsTable(root)
	if len(rows) == 0 {
		return nil, &domain.ManualUploadRequiredError{ISIN: etfISIN, Provider: IssuerUnknown}
	}
	return rows, nil
}

// extractHoldingsTable takes the first <table> in the parsed DOM, uses
// its first row with a recognizable "ticker" column as the header, and
// reads every later row of that table against that column map. Later
// tables are not searched, so a page whose first table is not the
// holdings table yields no rows, as does a page with no table; the
// caller treats no rows as a manual-upload trigger.
func extractHoldingsTable(root *html.Node) []RawHolding {
	var table *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if table != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "table" {
			table = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if table == nil {
		return nil
	}

	var out []RawHolding
	var col map[string]int
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			cells := cellTexts(n)
			if col == nil {
				col = headerColumns(cells)
				return
			}
			if row, ok := rowFromCells(cells, col); ok {
				out = append(out, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return out
}

func cellTexts(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, strings.TrimSpace(textContent(c)))
		}
	}
	return cells
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func headerColumns(cells []string) map[string]int {
	col := make(map[string]int, len(cells))
	for i, c := range cells {
		col[strings.ToLower(c)] = i
	}
	if _, ok := col["ticker"]; !ok {
		return nil
	}
	if _, ok := col["weight"]; !ok {
		if _, ok := col["weight (%)"]; ok {
			col["weight"] = col["weight (%)"]
		}
	}
	return col
}

func rowFromCells(cells []string, col map[string]int) (RawHolding, bool) {
	if col == nil {
		return RawHolding{}, false
	}
	tIdx, ok := col["ticker"]
	if !ok || tIdx >= len(cells) {
		return RawHolding{}, false
	}
	wIdx, ok := col["weight"]
	if !ok || wIdx >= len(cells) {
		return RawHolding{}, false
	}
	weightStr := strings.TrimSuffix(strings.TrimSpace(cells[wIdx]), "%")
	weight, err := strconv.ParseFloat(weightStr, 64)
	if err != nil {
		return RawHolding{}, false
	}
	if weight > 1 {
		weight /= 100 // tables commonly render "4.25" meaning 4.25%
	}
	row := RawHolding{Ticker: cells[tIdx], Weight: weight}
	if i, ok := col["name"]; ok && i < len(cells) {
		row.Name = cells[i]
	}
	return row, true
}
