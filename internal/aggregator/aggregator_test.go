package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateSumsExposureAndKeepsMaxConfidenceSource(t *testing.T) {
	rows := []Row{
		{ISIN: "US67066G1040", Name: "NVIDIA", Weight: 0.04, Source: "provider", Confidence: 1.0},
		{ISIN: "US67066G1040", Name: "", Weight: 0.01, Source: "api_wikidata", Confidence: 0.80, ParentETF: "IE00B4L5Y983"},
	}

	result := Aggregate(rows)

	require.Len(t, result.Exposures, 1)
	row := result.Exposures[0]
	require.Equal(t, "US67066G1040", row.ISIN)
	require.InDelta(t, 0.05, row.TotalExposure, 1e-9)
	require.Equal(t, "NVIDIA", row.Name)
	require.Equal(t, "provider", row.Source)
	require.Equal(t, 1.0, row.Confidence)
}

func TestAggregateTieBreaksOnFirstOccurrence(t *testing.T) {
	rows := []Row{
		{ISIN: "US0378331005", Name: "Apple", Weight: 0.02, Source: "api_wikidata", Confidence: 0.80},
		{ISIN: "US0378331005", Name: "", Weight: 0.02, Source: "api_finnhub_tied", Confidence: 0.80},
	}

	result := Aggregate(rows)

	require.Len(t, result.Exposures, 1)
	require.Equal(t, "api_wikidata", result.Exposures[0].Source)
}

func TestAggregateDefaultsMissingProvenanceToZeroConfidenceEmptySource(t *testing.T) {
	rows := []Row{{ISIN: "US67066G1040", Name: "NVIDIA", Weight: 1}}

	result := Aggregate(rows)

	require.Len(t, result.Exposures, 1)
	require.Equal(t, "", result.Exposures[0].Source)
	require.Equal(t, 0.0, result.Exposures[0].Confidence)
}

func TestAggregateRoutesUnresolvedRowsToParallelReport(t *testing.T) {
	rows := []Row{
		{ISIN: "US67066G1040", Weight: 0.5},
		{Ticker: "ZZZZ", Name: "Unknown Co", Weight: 0.01},
	}

	result := Aggregate(rows)

	require.Len(t, result.Exposures, 1)
	require.Len(t, result.Unresolved.Items, 1)
	require.Equal(t, "ZZZZ", result.Unresolved.Items[0].Ticker)
	require.False(t, result.Unresolved.Truncated)
	require.Equal(t, 1, result.Unresolved.Total)
}

func TestAggregateTruncatesUnresolvedReportToTop100ByWeight(t *testing.T) {
	rows := make([]Row, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, Row{Ticker: "ZZZZ", Weight: float64(i)})
	}

	result := Aggregate(rows)

	require.Len(t, result.Unresolved.Items, 100)
	require.True(t, result.Unresolved.Truncated)
	require.Equal(t, 150, result.Unresolved.Total)
	// Sorted descending by weight: the heaviest rows survive truncation.
	require.Equal(t, 149.0, result.Unresolved.Items[0].Weight)
	require.Equal(t, 50.0, result.Unresolved.Items[99].Weight)
}

func TestAggregateIsAssociativeAppliedTwice(t *testing.T) {
	rows := []Row{
		{ISIN: "US67066G1040", Name: "NVIDIA", Weight: 0.03, Source: "provider", Confidence: 1.0},
		{ISIN: "US67066G1040", Weight: 0.01, Source: "api_wikidata", Confidence: 0.80},
		{ISIN: "US0378331005", Name: "Apple", Weight: 0.02, Source: "hive_ticker", Confidence: 0.90},
	}

	first := Aggregate(rows)

	reAggregated := make([]Row, len(first.Exposures))
	for i, e := range first.Exposures {
		reAggregated[i] = Row{ISIN: e.ISIN, Name: e.Name, Sector: e.Sector, Geography: e.Geography, Weight: e.TotalExposure, Source: e.Source, Confidence: e.Confidence}
	}
	second := Aggregate(reAggregated)

	require.Equal(t, first.Exposures, second.Exposures)
}
