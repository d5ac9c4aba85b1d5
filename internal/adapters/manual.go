package adapters

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/exposure-engine/internal/domain"
)

// ManualUpload is a user-supplied holdings file, resolved before any
// network call is attempted (§4.5 tier 1).
type ManualUpload struct {
	// Path is the original filename, used only to detect format by
	// extension; the actual bytes are read from Reader.
	Path   string
	Reader io.Reader
}

// ParseManualUpload parses a CSV or JSON manual upload into the
// canonical raw-holding shape. XLSX and PDF are named in the contract
// (§11.2) but not parsed — they return *domain.ErrUnsupportedManualFormat
// so the capability is modeled rather than silently dropped.
func ParseManualUpload(u ManualUpload) ([]RawHolding, error) {
	switch ext := strings.ToLower(filepath.Ext(u.Path)); ext {
	case ".csv":
		return parseManualCSV(u.Reader)
	case ".json":
		return parseManualJSON(u.Reader)
	case ".xlsx", ".pdf":
		return nil, &domain.ErrUnsupportedManualFormat{Extension: ext}
	default:
		return nil, &domain.ErrUnsupportedManualFormat{Extension: ext}
	}
}

// parseManualCSV expects a header row containing at minimum ticker,
// name, weight, with isin/sector/country/currency optional.
func parseManualCSV(r io.Reader) ([]RawHolding, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manual CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"ticker", "name", "weight"} {
		if _, ok := col[required]; !ok {
			return nil, &domain.ValidationError{Field: required, Reason: "missing column in manual upload CSV"}
		}
	}

	var out []RawHolding
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manual CSV row: %w", err)
		}

		weight, err := strconv.ParseFloat(strings.TrimSpace(record[col["weight"]]), 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: "weight", Reason: "not a number: " + record[col["weight"]]}
		}

		row := RawHolding{
			Ticker: record[col["ticker"]],
			Name:   record[col["name"]],
			Weight: weight,
		}
		if i, ok := col["isin"]; ok {
			row.ISIN = record[i]
		}
		if i, ok := col["sector"]; ok {
			row.Sector = record[i]
		}
		if i, ok := col["country"]; ok {
			row.Country = record[i]
		}
		if i, ok := col["currency"]; ok {
			row.Currency = record[i]
		}
		out = append(out, row)
	}
	return out, nil
}

func parseManualJSON(r io.Reader) ([]RawHolding, error) {
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
		return nil, fmt.Errorf("failed to decode manual JSON upload: %w", err)
	}

	out := make([]RawHolding, len(raw))
	for i, r := range raw {
		out[i] = RawHolding{
			Ticker: r.Ticker, Name: r.Name, Weight: r.Weight,
			ISIN: r.ISIN, Sector: r.Sector, Country: r.Country, Currency: r.Currency,
		}
	}
	return out, nil
}

// ManualStore retrieves a previously saved manual upload for an ETF, if
// one has been provided. It lives behind an interface so the adapter
// registry doesn't need to know whether uploads are kept on disk, in
// the local cache, or in memory.
type ManualStore interface {
	GetManualUpload(etfISIN string) (*ManualUpload, error)
}
