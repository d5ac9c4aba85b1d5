package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/adapters"
	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/decomposer"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/events"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/resolver"
)

func newTestOrchestrator(t *testing.T, healthPath string) (*Orchestrator, *events.Bus) {
	t.Helper()
	store, err := cache.Open("file::memory:?cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	res := resolver.New(resolver.Config{Tier1WeightThreshold: 0.005}, store, nil, nil, nil, nil, zerolog.Nop())
	hiveClient := hive.New(hive.Config{}, zerolog.Nop())
	decomp := decomposer.New(decomposer.Config{Tier1WeightThreshold: 0.005}, store, hiveClient, adapters.NewRegistry(nil), res, zerolog.Nop())

	bus := events.NewBus(zerolog.Nop())
	orch := New(Config{Tier1WeightThreshold: 0.005, HealthReportPath: healthPath}, bus, decomp, res, zerolog.Nop())
	return orch, bus
}

func TestRunAggregatesDirectAndDecomposedHoldingsNVIDIAEverywhere(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open("file::memory:?cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now().UTC()
	for _, etfISIN := range []string{"IE00B4L5Y983", "IE00B5BMR087", "IE00B0M62Q58"} {
		require.NoError(t, store.PutETFHoldings(etfISIN, []domain.ETFHoldingEdge{
			{ETFISIN: etfISIN, HoldingISIN: "US67066G1040", Weight: 0.05, Confidence: 1.0, LastUpdated: now, Source: "ishares"},
		}))
	}

	res := resolver.New(resolver.Config{Tier1WeightThreshold: 0.005}, store, nil, nil, nil, nil, zerolog.Nop())
	hiveClient := hive.New(hive.Config{}, zerolog.Nop())
	decomp := decomposer.New(decomposer.Config{Tier1WeightThreshold: 0.005}, store, hiveClient, adapters.NewRegistry(nil), res, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	orch := New(Config{Tier1WeightThreshold: 0.005, HealthReportPath: filepath.Join(dir, "pipeline_health.json")}, bus, decomp, res, zerolog.Nop())

	direct := []Input{
		{Row: domain.HoldingRow{ISIN: "US67066G1040", Name: "NVIDIA Corp", Quantity: 10.506795, Price: 159.84, AssetClass: domain.AssetClassStock, ResolutionSource: domain.SourceProvider, ResolutionConfidence: domain.ConfidenceProvider}},
	}
	etfs := []Input{
		{Row: domain.HoldingRow{ISIN: "IE00B4L5Y983", Name: "ETF One", AssetClass: domain.AssetClassETF}, Weight: 0.1, MarketValue: 10000},
		{Row: domain.HoldingRow{ISIN: "IE00B5BMR087", Name: "ETF Two", AssetClass: domain.AssetClassETF}, Weight: 0.1, MarketValue: 10000},
		{Row: domain.HoldingRow{ISIN: "IE00B0M62Q58", Name: "ETF Three", AssetClass: domain.AssetClassETF}, Weight: 0.1, MarketValue: 10000},
	}

	result, err := orch.Run(context.Background(), direct, etfs)
	require.NoError(t, err)

	var totalExposure float64
	var source string
	var confidence float64
	found := false
	for _, e := range result.Exposures {
		if e.ISIN == "US67066G1040" {
			totalExposure = e.TotalExposure
			source = e.Source
			confidence = e.Confidence
			found = true
		}
	}
	require.True(t, found)
	// Direct market value is qty*price per the universal invariant (§8);
	// each ETF contributes in_etf_weight * etf_market_value on top.
	require.InDelta(t, 10.506795*159.84+0.05*30000, totalExposure, 0.01)
	require.Equal(t, domain.SourceProvider, source)
	require.Equal(t, domain.ConfidenceProvider, confidence)

	require.Equal(t, 3, result.Health.Metrics.ETFsProcessed)
	require.Equal(t, 1, result.Health.Metrics.DirectHoldings)
	require.Equal(t, 3, result.Health.Metrics.ETFPositions)
}

func TestRunWritesHealthReportAtomicallyAndMatchesSchema(t *testing.T) {
	dir := t.TempDir()
	healthPath := filepath.Join(dir, "pipeline_health.json")
	orch, _ := newTestOrchestrator(t, healthPath)

	direct := []Input{
		{Row: domain.HoldingRow{ISIN: "US0378331005", Name: "Apple", Quantity: 1, Price: 100, AssetClass: domain.AssetClassStock, ResolutionSource: domain.SourceProvider, ResolutionConfidence: domain.ConfidenceProvider}},
	}
	_, err := orch.Run(context.Background(), direct, nil)
	require.NoError(t, err)

	body, err := os.ReadFile(healthPath)
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &report))
	require.Contains(t, report, "timestamp")
	require.Contains(t, report, "metrics")
	require.Contains(t, report, "performance")
	require.Contains(t, report, "decomposition")
	require.Contains(t, report, "enrichment")
	require.Contains(t, report, "failures")
	require.Contains(t, report, "unresolved")

	// no leftover temp files
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunManualUploadRequiredETFSurfacesAsFailureNotFatal(t *testing.T) {
	orch, _ := newTestOrchestrator(t, "")

	etfs := []Input{
		{Row: domain.HoldingRow{ISIN: "XX0000000001", Name: "Mystery ETF", AssetClass: domain.AssetClassETF}, Weight: 0.05, MarketValue: 5000},
	}

	result, err := orch.Run(context.Background(), nil, etfs)
	require.NoError(t, err)
	require.Len(t, result.Health.Failures, 1)
	require.Equal(t, "adapter_requires_manual_upload", result.Health.Failures[0].Issue)
	require.Equal(t, "XX0000000001", result.Health.Failures[0].ISIN)
}

func TestRunEmitsPhaseTransitionsAndTerminalSummary(t *testing.T) {
	orch, bus := newTestOrchestrator(t, "")

	var mu sync.Mutex
	seen := make([]events.Phase, 0, 4)
	done := make(chan struct{}, 1)
	bus.Subscribe(events.EventProgress, func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Phase)
		mu.Unlock()
	})
	bus.Subscribe(events.EventPipelineSummary, func(e events.Event) {
		done <- struct{}{}
	})

	direct := []Input{
		{Row: domain.HoldingRow{ISIN: "US0378331005", Name: "Apple", Quantity: 1, Price: 100, AssetClass: domain.AssetClassStock}},
	}
	_, err := orch.Run(context.Background(), direct, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline_summary event")
	}
	time.Sleep(10 * time.Millisecond) // let progress-event handlers land too

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, seen, events.PhaseLoading)
	require.Contains(t, seen, events.PhaseDecomposition)
	require.Contains(t, seen, events.PhaseEnrichment)
	require.Contains(t, seen, events.PhaseAggregation)
}
