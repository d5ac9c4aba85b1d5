// Package decomposer implements the Decomposer (C6): for each ETF
// position it resolves the underlying holdings through the local
// cache, the community store, and the adapter registry in that order,
// then pushes each underlying row through the resolver (§4.6).
package decomposer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/adapters"
	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/resolver"
)

// ETFPosition is one ETF held directly in the portfolio, the
// Decomposer's unit of work. Weight and MarketValue serve two
// different needs downstream: Weight (fraction of total portfolio
// value) feeds the resolver's Tier-1/Tier-2 gate (§4.4), while
// MarketValue (the ETF position's own money value) scales each
// underlying's exposure contribution (§8 scenario 2: an underlying's
// total_exposure contribution is its in-ETF weight times the ETF's own
// market value, not a portfolio-fraction product).
type ETFPosition struct {
	ISIN        string
	Name        string
	Weight      float64 // fraction of the total portfolio
	MarketValue float64 // the ETF position's own quantity*price
}

// UnderlyingRow is one resolved holding inside a decomposed ETF. Weight
// is its exposure contribution in money terms (parent ETF's market
// value * underlying weight within the ETF), ready to feed the
// Aggregator (§4.6 step 4, §4.7).
type UnderlyingRow struct {
	ISIN                 string
	Name                 string
	Ticker               string
	Weight               float64
	ResolutionStatus     domain.ResolutionStatus
	ResolutionDetail     string
	ResolutionSource     string
	ResolutionConfidence float64
}

// Stat is the per-ETF observability record (§4.6 step 5), also the
// shape of each `decomposition.per_etf` entry in the orchestrator's
// health report (§4.8).
type Stat struct {
	ISIN          string  `json:"isin"`
	Name          string  `json:"name"`
	HoldingsCount int     `json:"holdings_count"`
	WeightSum     float64 `json:"weight_sum"`
	Status        string  `json:"status"` // success, partial, failed
	Source        string  `json:"source"` // cache, hive, <issuer>, cycle_leaf, or empty on failure
}

// Result is what decomposing one ETF position yields.
type Result struct {
	Underlyings []UnderlyingRow
	Stat        Stat
	// ManualUploadRequired is set when the adapter cascade could not
	// fetch holdings automatically; the orchestrator turns this into an
	// actionable failure (§4.6 step 3).
	ManualUploadRequired *domain.ManualUploadRequiredError
}

// Config tunes the decomposer.
type Config struct {
	Tier1WeightThreshold float64
	HoldingsCacheTTL     time.Duration // default 24h, matches the staleness default in §3 Lifecycles
}

// Decomposer is re-entrant across ETFs but a fresh visited-set must be
// supplied per pipeline run to detect cycles (§9 Design Notes).
type Decomposer struct {
	cfg      Config
	log      zerolog.Logger
	cache    *cache.Store
	hive     *hive.Client
	registry *adapters.Registry
	resolver *resolver.Resolver
}

// New builds a Decomposer.
func New(cfg Config, store *cache.Store, hiveClient *hive.Client, registry *adapters.Registry, res *resolver.Resolver, log zerolog.Logger) *Decomposer {
	if cfg.HoldingsCacheTTL == 0 {
		cfg.HoldingsCacheTTL = 24 * time.Hour
	}
	return &Decomposer{
		cfg: cfg, log: log.With().Str("component", "decomposer").Logger(),
		cache: store, hive: hiveClient, registry: registry, resolver: res,
	}
}

// Decompose resolves one ETF's underlying holdings. visited tracks ETF
// ISINs already on the current call stack/run so a holding cycle
// terminates instead of recursing forever (§9 Design Notes: "treat the
// inner ETF as an opaque leaf with its portfolio weight preserved").
func (d *Decomposer) Decompose(ctx context.Context, pos ETFPosition, visited map[string]bool) Result {
	if visited[pos.ISIN] {
		return Result{
			Stat: Stat{ISIN: pos.ISIN, Name: pos.Name, Status: "success", Source: "cycle_leaf", HoldingsCount: 0, WeightSum: 0},
		}
	}
	visited[pos.ISIN] = true

	edges, source, err := d.fetchEdges(ctx, pos)
	if err != nil {
		if manualRequired, ok := err.(*domain.ManualUploadRequiredError); ok {
			return Result{
				Stat:                 Stat{ISIN: pos.ISIN, Name: pos.Name, Status: "failed", Source: ""},
				ManualUploadRequired: manualRequired,
			}
		}
		d.log.Warn().Err(err).Str("isin", pos.ISIN).Msg("decomposer: failed to fetch etf holdings")
		return Result{Stat: Stat{ISIN: pos.ISIN, Name: pos.Name, Status: "failed", Source: ""}}
	}

	underlyings := make([]UnderlyingRow, 0, len(edges))
	var weightSum float64
	failures := 0
	for _, e := range edges {
		weightSum += e.Weight

		// Edges reaching here already carry the provenance the resolver
		// cascade computed when fetchEdges built them (cache/hive rows
		// were resolved on a prior run; adapter rows were resolved inside
		// fetchEdges). Re-resolving an already-known ISIN would only
		// hit the resolver's step-1 short-circuit and flatten every
		// edge's real confidence to provider/1.0.
		row := UnderlyingRow{
			ISIN: e.HoldingISIN, Weight: pos.MarketValue * e.Weight,
			ResolutionStatus: domain.ResolutionResolved,
			ResolutionSource: e.Source, ResolutionConfidence: e.Confidence,
		}
		if e.HoldingISIN == "" {
			row.ResolutionStatus = domain.ResolutionUnresolved
			row.ResolutionDetail = "etf holding edge carries no resolved ISIN"
			failures++
		}
		underlyings = append(underlyings, row)
	}

	status := "success"
	if failures > 0 && failures == len(edges) {
		status = "failed"
	} else if failures > 0 {
		status = "partial"
	}

	return Result{
		Underlyings: underlyings,
		Stat: Stat{
			ISIN: pos.ISIN, Name: pos.Name, HoldingsCount: len(edges),
			WeightSum: weightSum, Status: status, Source: source,
		},
	}
}

// fetchEdges implements §4.6 steps 1-3: cache, then hive, then adapter.
func (d *Decomposer) fetchEdges(ctx context.Context, pos ETFPosition) ([]domain.ETFHoldingEdge, string, error) {
	if edges, fresh, err := d.cache.GetETFHoldings(pos.ISIN, d.cfg.HoldingsCacheTTL); err != nil {
		d.log.Warn().Err(err).Str("isin", pos.ISIN).Msg("decomposer: cache lookup failed, proceeding as miss")
	} else if fresh {
		return edges, "cache", nil
	}

	if d.hive != nil && d.hive.Enabled() {
		edges, err := d.hive.GetETFHoldings(ctx, pos.ISIN)
		if err != nil {
			d.log.Debug().Err(err).Str("isin", pos.ISIN).Msg("decomposer: hive get_etf_holdings failed, degrading to adapter")
		} else if len(edges) > 0 {
			for i := range edges {
				edges[i].Source = "hive"
			}
			if err := d.cache.PutETFHoldings(pos.ISIN, edges); err != nil {
				d.log.Warn().Err(err).Msg("decomposer: failed to cache hive-sourced holdings")
			}
			return edges, "hive", nil
		}
	}

	issuer := d.detectIssuer(pos.ISIN)
	raw, err := d.registry.FetchHoldings(ctx, pos.ISIN, issuer)
	if err != nil {
		return nil, "", err
	}

	adapters.CheckWeightSum(raw, pos.ISIN, d.log)

	edges := make([]domain.ETFHoldingEdge, 0, len(raw))
	now := time.Now().UTC()
	for _, h := range raw {
		req := resolver.Request{Ticker: h.Ticker, Name: h.Name, ProviderISIN: h.ISIN, Weight: pos.Weight * h.Weight}
		res := d.resolver.Resolve(ctx, req)
		if !res.Resolved() {
			continue
		}
		edges = append(edges, domain.ETFHoldingEdge{
			ETFISIN: pos.ISIN, HoldingISIN: res.ISIN, Weight: h.Weight,
			Confidence: res.Confidence, LastUpdated: now, Source: issuer,
		})
	}

	if err := d.cache.PutETFHoldings(pos.ISIN, edges); err != nil {
		d.log.Warn().Err(err).Msg("decomposer: failed to cache adapter-sourced holdings")
	}
	return edges, issuer, nil
}

// detectIssuer applies §4.6's "cached source then ISIN prefix" rule.
func (d *Decomposer) detectIssuer(etfISIN string) string {
	if edges, _, err := d.cache.GetETFHoldings(etfISIN, 365*24*time.Hour); err == nil {
		for _, e := range edges {
			if e.Source != "" && e.Source != "cache" && e.Source != "hive" {
				return e.Source
			}
		}
	}
	return adapters.IssuerFromISINPrefix(etfISIN)
}
