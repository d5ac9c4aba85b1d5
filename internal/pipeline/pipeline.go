// Package pipeline implements the Pipeline Orchestrator (C8): the
// four-phase run (loading, decomposition, enrichment, aggregation)
// that turns ingested positions into the true-exposure report and the
// health report (§4.8).
package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/aggregator"
	"github.com/aristath/exposure-engine/internal/decomposer"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/events"
	"github.com/aristath/exposure-engine/internal/resolver"
)

// Config tunes the orchestrator.
type Config struct {
	Tier1WeightThreshold float64
	HealthReportPath     string
	DebounceInterval     time.Duration // 0 uses the §4.8 default of 100ms

	// TrueExposureCSVPath/TrueExposureJSONPath/HoldingsBreakdownCSVPath
	// are the canonical UI-consumption outputs (§6): empty skips writing
	// that file, same as HealthReportPath.
	TrueExposureCSVPath     string
	TrueExposureJSONPath    string
	HoldingsBreakdownCSVPath string
}

// Orchestrator runs the four-phase pipeline described in §4.8, wiring
// the Decomposer, Resolver, and Aggregator behind a single entry point
// and publishing progress through a ProgressEmitter.
type Orchestrator struct {
	cfg        Config
	log        zerolog.Logger
	bus        *events.Bus
	decomposer *decomposer.Decomposer
	resolver   *resolver.Resolver
}

// New builds an Orchestrator.
func New(cfg Config, bus *events.Bus, decomp *decomposer.Decomposer, res *resolver.Resolver, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, log: log.With().Str("component", "pipeline").Logger(),
		bus: bus, decomposer: decomp, resolver: res,
	}
}

// Input is one direct portfolio holding, already normalized by
// ingestion. ETF positions additionally carry the ETF's own market
// value, since the Decomposer needs both the portfolio fraction (for
// the resolver's Tier-1/Tier-2 gate) and the money value (for the
// underlying exposure contribution, §8 scenario 2).
type Input struct {
	Row         domain.HoldingRow
	Weight      float64 // fraction of total portfolio value
	MarketValue float64 // quantity * unit_price
}

// Failure is one entry in the health report's failures list (§4.8).
type Failure struct {
	ISIN      string  `json:"isin,omitempty"`
	Ticker    string  `json:"ticker,omitempty"`
	Name      string  `json:"name,omitempty"`
	Weight    float64 `json:"weight"`
	Issue     string  `json:"issue"`
	ParentETF string  `json:"parent_etf,omitempty"`
}

// HealthReport is the orchestrator's output, written atomically to a
// stable JSON path and returned on demand (§4.8).
type HealthReport struct {
	Timestamp time.Time `json:"timestamp"`
	Metrics   struct {
		DirectHoldings int `json:"direct_holdings"`
		ETFPositions   int `json:"etf_positions"`
		ETFsProcessed  int `json:"etfs_processed"`
		Tier1Resolved  int `json:"tier1_resolved"`
		Tier1Failed    int `json:"tier1_failed"`
	} `json:"metrics"`
	Performance struct {
		TotalSeconds float64 `json:"total_seconds"`
		Phases       struct {
			Loading       float64 `json:"loading"`
			Decomposition float64 `json:"decomposition"`
			Enrichment    float64 `json:"enrichment"`
			Aggregation   float64 `json:"aggregation"`
		} `json:"phases"`
	} `json:"performance"`
	Decomposition struct {
		PerETF []decomposer.Stat `json:"per_etf"`
	} `json:"decomposition"`
	Enrichment struct {
		Stats struct {
			HiveHits         int `json:"hive_hits"`
			APICalls         int `json:"api_calls"`
			NewContributions int `json:"new_contributions"`
		} `json:"stats"`
		HiveLog struct {
			Contributions []string `json:"contributions"`
			Hits          []string `json:"hits"`
		} `json:"hive_log"`
	} `json:"enrichment"`
	Failures   []Failure                    `json:"failures"`
	Unresolved aggregator.UnresolvedReport `json:"unresolved"`
}

// Result is what Run returns: the aggregated exposures and the health
// report that was also written to disk.
type Result struct {
	Exposures []aggregator.ExposureRow
	Health    HealthReport
}

// Run executes the four phases in order (§4.8). Run does not check ctx
// itself and does not stop early when it is cancelled: ctx is handed to
// the decomposer and resolver, whose network calls take their timeouts
// from contexts derived from it, so cancelling ctx makes in-flight and
// later network calls fail at once rather than run to their timeouts,
// while local-cache lookups and the remaining phases still proceed.
func (o *Orchestrator) Run(ctx context.Context, direct []Input, etfs []Input) (Result, error) {
	emitter := events.NewProgressEmitter(o.bus, o.cfg.DebounceInterval)
	runStart := time.Now()

	health := HealthReport{Timestamp: runStart.UTC()}
	var failures []Failure
	var aggRows []aggregator.Row

	// Phase 1: Loading.
	loadStart := time.Now()
	stockCount, etfCount := 0, len(etfs)
	var totalValue float64
	for _, in := range direct {
		if in.Row.AssetClass != domain.AssetClassETF {
			stockCount++
		}
		totalValue += in.Row.MarketValue()
	}
	for _, in := range etfs {
		totalValue += in.MarketValue
	}
	health.Metrics.DirectHoldings = len(direct)
	health.Metrics.ETFPositions = etfCount

	emitter.EmitProgress(events.PhaseLoading, 0, "loading positions")
	emitter.EmitProgress(events.PhaseLoading, 100, fmt.Sprintf(
		"Found %d holdings (%d stocks, %d ETFs) worth €%.2f", len(direct)+len(etfs), stockCount, etfCount, totalValue))
	health.Performance.Phases.Loading = time.Since(loadStart).Seconds()

	for _, in := range direct {
		aggRows = append(aggRows, aggregator.FromHoldingRow(in.Row, in.Row.MarketValue()))
	}

	// Phase 2: Decomposition.
	decompStart := time.Now()
	visited := make(map[string]bool)
	processed, failed, totalUnderlying := 0, 0, 0

	for i, in := range etfs {
		pos := decomposer.ETFPosition{ISIN: in.Row.ISIN, Name: in.Row.Name, Weight: in.Weight, MarketValue: in.MarketValue}
		result := o.decomposer.Decompose(ctx, pos, visited)
		health.Decomposition.PerETF = append(health.Decomposition.PerETF, result.Stat)

		if result.ManualUploadRequired != nil {
			failed++
			failures = append(failures, Failure{
				ISIN: in.Row.ISIN, Name: in.Row.Name, Weight: in.Weight,
				Issue: "adapter_requires_manual_upload",
			})
		} else if result.Stat.Status == "failed" {
			failed++
			failures = append(failures, Failure{ISIN: in.Row.ISIN, Name: in.Row.Name, Weight: in.Weight, Issue: "decomposition_failed"})
		} else {
			processed++
		}

		for _, u := range result.Underlyings {
			totalUnderlying++
			aggRows = append(aggRows, aggregator.Row{
				ISIN: u.ISIN, Name: u.Name, Ticker: u.Ticker, Weight: u.Weight,
				Source: u.ResolutionSource, Confidence: u.ResolutionConfidence, ParentETF: in.Row.ISIN,
			})
			if !u.ResolutionStatus.Resolved() {
				failures = append(failures, Failure{
					Ticker: u.Ticker, Name: u.Name, Weight: u.Weight,
					Issue: "unresolved_underlying", ParentETF: in.Row.ISIN,
				})
			}
		}

		progress := 100
		if len(etfs) > 0 {
			progress = ((i + 1) * 100) / len(etfs)
		}
		emitter.EmitProgress(events.PhaseDecomposition, progress, fmt.Sprintf("decomposed %s (%d/%d)", in.Row.ISIN, i+1, len(etfs)))
	}
	health.Metrics.ETFsProcessed = processed
	emitter.EmitProgress(events.PhaseDecomposition, 100, fmt.Sprintf("processed=%d failed=%d total_underlying=%d", processed, failed, totalUnderlying))
	health.Performance.Phases.Decomposition = time.Since(decompStart).Seconds()

	// Phase 3: Enrichment. Direct equity rows above the Tier-1
	// threshold that still lack a resolved ISIN get one more pass
	// through the resolver with portfolio-level weight context, to
	// catch rows ingestion could not place via provider ISIN alone.
	enrichStart := time.Now()
	hiveHits, apiCalls, newContributions := 0, 0, 0
	var hiveHitISINs, contributionISINs []string
	tier1Resolved, tier1Failed := 0, 0

	for i := range aggRows {
		row := &aggRows[i]
		if row.ISIN != "" || row.ParentETF != "" {
			continue
		}
		req := resolver.Request{Ticker: row.Ticker, Name: row.Name, Weight: row.Weight / maxFloat(totalValue, 1)}
		res := o.resolver.Resolve(ctx, req)
		row.Source = res.Source
		row.Confidence = res.Confidence
		if res.Resolved() {
			row.ISIN = res.ISIN
			tier1Resolved++
			switch res.Source {
			case domain.SourceHiveTicker, domain.SourceHiveAlias:
				hiveHits++
				hiveHitISINs = append(hiveHitISINs, res.ISIN)
			case domain.SourceWikidata, domain.SourceFinnhub, domain.SourceYahoo:
				apiCalls++
				newContributions++
				contributionISINs = append(contributionISINs, res.ISIN)
			}
		} else if res.Status != domain.ResolutionSkipped {
			tier1Failed++
			failures = append(failures, Failure{Ticker: row.Ticker, Name: row.Name, Weight: row.Weight, Issue: "unresolved_direct_equity"})
		}
	}
	health.Metrics.Tier1Resolved = tier1Resolved
	health.Metrics.Tier1Failed = tier1Failed
	health.Enrichment.Stats.HiveHits = hiveHits
	health.Enrichment.Stats.APICalls = apiCalls
	health.Enrichment.Stats.NewContributions = newContributions
	health.Enrichment.HiveLog.Hits = hiveHitISINs
	health.Enrichment.HiveLog.Contributions = contributionISINs
	emitter.EmitProgress(events.PhaseEnrichment, 100, fmt.Sprintf("enriched %d rows (%d resolved, %d failed)", tier1Resolved+tier1Failed, tier1Resolved, tier1Failed))
	health.Performance.Phases.Enrichment = time.Since(enrichStart).Seconds()

	// Phase 4: Aggregation.
	aggStart := time.Now()
	aggResult := aggregator.Aggregate(aggRows)
	emitter.EmitProgress(events.PhaseAggregation, 100, fmt.Sprintf("aggregated into %d positions, %d unresolved", len(aggResult.Exposures), aggResult.Unresolved.Total))
	health.Performance.Phases.Aggregation = time.Since(aggStart).Seconds()

	health.Failures = failures
	health.Unresolved = aggResult.Unresolved
	health.Performance.TotalSeconds = time.Since(runStart).Seconds()

	if err := o.writeHealthReport(health); err != nil {
		o.log.Warn().Err(err).Msg("pipeline: failed to write health report")
	}
	if err := o.writeOutputs(aggResult.Exposures); err != nil {
		o.log.Warn().Err(err).Msg("pipeline: failed to write true-exposure outputs")
	}
	if err := o.writeHoldingsBreakdown(aggRows); err != nil {
		o.log.Warn().Err(err).Msg("pipeline: failed to write holdings breakdown")
	}

	emitter.EmitSummary(health)

	return Result{Exposures: aggResult.Exposures, Health: health}, nil
}

// writeHealthReport writes the report atomically: serialize to a
// temp file in the same directory, then rename over the stable path,
// so a concurrent reader of get_pipeline_report never observes a
// partial write.
func (o *Orchestrator) writeHealthReport(report HealthReport) error {
	if o.cfg.HealthReportPath == "" {
		return nil
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health report: %w", err)
	}
	return atomicWriteFile(o.cfg.HealthReportPath, body)
}

// writeOutputs writes the canonical true_exposure.{json,csv}
// UI-consumption artifacts (§6), each atomically. A failure writing the
// JSON file returns before the CSV file is attempted.
// holdings_breakdown.csv is written separately by writeHoldingsBreakdown,
// which Run calls whether or not this call fails.
func (o *Orchestrator) writeOutputs(exposures []aggregator.ExposureRow) error {
	if o.cfg.TrueExposureJSONPath != "" {
		body, err := json.MarshalIndent(exposures, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal true exposure json: %w", err)
		}
		if err := atomicWriteFile(o.cfg.TrueExposureJSONPath, body); err != nil {
			return err
		}
	}
	if o.cfg.TrueExposureCSVPath != "" {
		rows := make([][]string, 0, len(exposures)+1)
		rows = append(rows, []string{"isin", "name", "sector", "geography", "total_exposure", "resolution_source", "resolution_confidence"})
		for _, e := range exposures {
			rows = append(rows, []string{
				e.ISIN, e.Name, e.Sector, e.Geography,
				strconv.FormatFloat(e.TotalExposure, 'f', -1, 64),
				e.Source, strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			})
		}
		if err := atomicWriteCSV(o.cfg.TrueExposureCSVPath, rows); err != nil {
			return err
		}
	}
	return nil
}

// writeHoldingsBreakdown writes the per-contribution rows (before
// ISIN-level merge) that back up true_exposure.csv: which ETF (if any)
// each contribution came from, and at what weight.
func (o *Orchestrator) writeHoldingsBreakdown(rows []aggregator.Row) error {
	if o.cfg.HoldingsBreakdownCSVPath == "" {
		return nil
	}
	out := make([][]string, 0, len(rows)+1)
	out = append(out, []string{"isin", "ticker", "name", "weight", "source", "confidence", "parent_etf"})
	for _, r := range rows {
		out = append(out, []string{
			r.ISIN, r.Ticker, r.Name, strconv.FormatFloat(r.Weight, 'f', -1, 64),
			r.Source, strconv.FormatFloat(r.Confidence, 'f', -1, 64), r.ParentETF,
		})
	}
	return atomicWriteCSV(o.cfg.HoldingsBreakdownCSVPath, out)
}

// atomicWriteFile serializes body to a temp file in path's directory
// then renames over the stable path, so a concurrent reader never
// observes a partial write.
func atomicWriteFile(path string, body []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place for %s: %w", path, err)
	}
	return nil
}

func atomicWriteCSV(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write csv rows for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place for %s: %w", path, err)
	}
	return nil
}

func maxFloat(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}
