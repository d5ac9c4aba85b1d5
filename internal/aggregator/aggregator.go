// Package aggregator implements the Aggregator (C7): it merges the
// direct holdings frame with every decomposed ETF frame by ISIN,
// computes true exposure, and keeps the provenance of the most
// confident resolution for each position (§4.7).
package aggregator

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/exposure-engine/internal/domain"
)

// Row is one contribution to a position's true exposure: a direct
// holding at its market value, or one underlying of a decomposed ETF
// whose in-ETF weight is already multiplied by the parent ETF's market
// value, so Weight is a money amount in both cases. ISIN empty means the row could not be
// resolved and belongs in the unresolved report instead.
type Row struct {
	ISIN       string
	Name       string
	Ticker     string
	Sector     string
	Geography  string
	Weight     float64
	Source     string
	Confidence float64
	ParentETF  string // set for rows that came out of a decomposed ETF
}

// ExposureRow is one output row: the merged view of every contribution
// sharing an ISIN (§4.7), and the row shape of `true_exposure.{csv,json}`
// (§6).
type ExposureRow struct {
	ISIN          string  `json:"isin" csv:"isin"`
	Name          string  `json:"name" csv:"name"`
	Sector        string  `json:"sector,omitempty" csv:"sector"`
	Geography     string  `json:"geography,omitempty" csv:"geography"`
	TotalExposure float64 `json:"total_exposure" csv:"total_exposure"`
	Source        string  `json:"resolution_source" csv:"resolution_source"`
	Confidence    float64 `json:"resolution_confidence" csv:"resolution_confidence"`
}

// UnresolvedRow is one row of the parallel report for contributions
// that never reached a resolved ISIN.
type UnresolvedRow struct {
	Ticker    string  `json:"ticker,omitempty"`
	Name      string  `json:"name,omitempty"`
	Weight    float64 `json:"weight"`
	ParentETF string  `json:"parent_etf,omitempty"`
}

// UnresolvedReport is capped at the top 100 rows by weight (§4.7).
type UnresolvedReport struct {
	Items     []UnresolvedRow `json:"items"`
	Truncated bool            `json:"truncated"`
	Total     int             `json:"total"`
}

const unresolvedReportLimit = 100

// Result is the Aggregator's full output.
type Result struct {
	Exposures  []ExposureRow
	Unresolved UnresolvedReport
}

// FromHoldingRow adapts an ingestion-layer row into an aggregator Row.
// Rows missing resolution provenance default to confidence=0, source=""
// (§4.7's "None" default) rather than being rejected.
func FromHoldingRow(h domain.HoldingRow, weight float64) Row {
	return Row{
		ISIN: h.ISIN, Name: h.Name, Ticker: h.Ticker,
		Weight: weight, Source: h.ResolutionSource, Confidence: h.ResolutionConfidence,
	}
}

// Aggregate groups rows by ISIN, sums exposure with gonum's vectorized
// floats.Sum, and keeps the max-confidence provenance per group
// (§4.7). It is associative: aggregating its own output is a no-op
// beyond re-summing single-row groups, so applying it twice yields the
// same frame (§8 testable property).
func Aggregate(rows []Row) Result {
	resolved := make([]Row, 0, len(rows))
	var unresolved []Row

	for _, r := range rows {
		if r.ISIN == "" {
			unresolved = append(unresolved, r)
			continue
		}
		resolved = append(resolved, r)
	}

	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].ISIN < resolved[j].ISIN })

	var exposures []ExposureRow
	for i := 0; i < len(resolved); {
		j := i
		for j < len(resolved) && resolved[j].ISIN == resolved[i].ISIN {
			j++
		}
		exposures = append(exposures, mergeGroup(resolved[i:j]))
		i = j
	}

	return Result{
		Exposures:  exposures,
		Unresolved: buildUnresolvedReport(unresolved),
	}
}

// mergeGroup folds every contribution sharing one ISIN into a single
// exposure row: total_exposure is the vectorized sum of weights;
// name/sector/geography take the first non-empty value seen;
// resolution_source is taken from whichever row holds
// max(resolution_confidence), ties broken by first occurrence (§4.7).
func mergeGroup(group []Row) ExposureRow {
	weights := make([]float64, len(group))
	for i, r := range group {
		weights[i] = r.Weight
	}

	out := ExposureRow{ISIN: group[0].ISIN, TotalExposure: floats.Sum(weights)}

	bestConfidence := -1.0
	for _, r := range group {
		if out.Name == "" && r.Name != "" {
			out.Name = r.Name
		}
		if out.Sector == "" && r.Sector != "" {
			out.Sector = r.Sector
		}
		if out.Geography == "" && r.Geography != "" {
			out.Geography = r.Geography
		}
		if r.Confidence > bestConfidence {
			bestConfidence = r.Confidence
			out.Source = r.Source
			out.Confidence = r.Confidence
		}
	}
	return out
}

// buildUnresolvedReport sorts unresolved contributions by weight
// descending and truncates to the top 100 (§4.7).
func buildUnresolvedReport(rows []Row) UnresolvedReport {
	if len(rows) == 0 {
		return UnresolvedReport{}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Weight > rows[j].Weight })

	limit := len(rows)
	truncated := false
	if limit > unresolvedReportLimit {
		limit = unresolvedReportLimit
		truncated = true
	}

	items := make([]UnresolvedRow, limit)
	for i, r := range rows[:limit] {
		items[i] = UnresolvedRow{Ticker: r.Ticker, Name: r.Name, Weight: r.Weight, ParentETF: r.ParentETF}
	}

	return UnresolvedReport{Items: items, Truncated: truncated, Total: len(rows)}
}
