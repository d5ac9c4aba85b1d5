// Package resolver implements the Identity Resolver (C4), the crown
// jewel of the engine: a cascaded, confidence-scored resolution
// pipeline from ticker/name/provider-ISIN to a canonical ISIN, bounded
// by a Tier-1/Tier-2 weight gate so long-tail holdings never trigger a
// network call (§4.4).
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/clients/finnhub"
	"github.com/aristath/exposure-engine/internal/clients/wikidata"
	"github.com/aristath/exposure-engine/internal/clients/yahoo"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/normalizer"
)

// Request is the resolver's input: (ticker, name, provider_isin?,
// weight?) per §4.4.
type Request struct {
	Ticker       string
	Name         string
	ProviderISIN string
	Weight       float64 // fraction of the containing ETF/portfolio; 0 means "unknown, treat as Tier 1"
}

// Config tunes the cascade (mirrors config.ResolverConfig/TimeoutConfig
// so this package does not import internal/config and create a cycle
// with the orchestrator's wiring code).
type Config struct {
	Tier1WeightThreshold float64
	NegativeCacheTTL     time.Duration

	WikidataTimeout time.Duration
	FinnhubTimeout  time.Duration
	YahooTimeout    time.Duration
}

// Resolver is re-entrant: it holds no mutable state of its own beyond
// its dependencies, all of which serialize their own writers (§4.4
// "Concurrency note").
type Resolver struct {
	cfg Config
	log zerolog.Logger

	cache    *cache.Store
	hive     *hive.Client
	wikidata *wikidata.Client
	finnhub  *finnhub.Client
	yahoo    *yahoo.Client
}

// New builds a Resolver.
func New(cfg Config, store *cache.Store, hiveClient *hive.Client, wikidataClient *wikidata.Client, finnhubClient *finnhub.Client, yahooClient *yahoo.Client, log zerolog.Logger) *Resolver {
	return &Resolver{
		cfg: cfg, log: log.With().Str("component", "resolver").Logger(),
		cache: store, hive: hiveClient, wikidata: wikidataClient, finnhub: finnhubClient, yahoo: yahooClient,
	}
}

func isValidISIN(isin string) bool {
	return domain.IsValidISIN(isin)
}

func isTier1(weight float64, threshold float64) bool {
	if weight == 0 {
		// Weight unknown: the caller (e.g. direct equity enrichment,
		// §4.8 phase 3) did not supply portfolio context. Treat as
		// Tier 1 rather than silently starving resolution.
		return true
	}
	return weight > threshold
}

// Resolve runs the cascade in §4.4's exact order and always returns a
// ResolutionResult with a non-null Status and Detail.
func (r *Resolver) Resolve(ctx context.Context, req Request) domain.ResolutionResult {
	// Step 1: provider ISIN short-circuit.
	if req.ProviderISIN != "" {
		if isValidISIN(req.ProviderISIN) {
			return domain.ResolutionResult{
				ISIN: req.ProviderISIN, Status: domain.ResolutionResolved,
				Detail: "existing", Source: domain.SourceProvider, Confidence: domain.ConfidenceProvider,
			}
		}
		// Malformed provider ISIN falls through to normal resolution
		// rather than erroring (§4.4 Failure semantics).
		r.log.Debug().Str("isin", req.ProviderISIN).Msg("malformed provider ISIN, falling through to normal resolution")
	}

	// Step 2: normalize.
	tickerRoot, exchangeHint := normalizer.ParseTicker(req.Ticker)
	tickerVariants := normalizer.GenerateVariants(req.Ticker)
	nameVariants := normalizer.NameVariants(req.Name)

	primaryTicker := tickerRoot
	if primaryTicker == "" && len(tickerVariants) > 0 {
		primaryTicker = tickerVariants[0]
	}

	// Step 3: local positive cache.
	if res, ok := r.tryLocalCache(tickerVariants, nameVariants); ok {
		return res
	}

	// Step 4: local negative cache.
	if res, ok := r.tryNegativeCache(primaryTicker, nameVariants); ok {
		return res
	}

	// Step 5: Tier-2 gate.
	if !isTier1(req.Weight, r.cfg.Tier1WeightThreshold) {
		return domain.ResolutionResult{Status: domain.ResolutionSkipped, Detail: "tier2_skipped"}
	}

	// Step 6: community store (Hive).
	if res, ok := r.tryHive(ctx, tickerVariants, nameVariants); ok {
		return res
	}

	// Step 7: API cascade.
	if res, ok := r.tryAPICascade(ctx, primaryTicker, tickerVariants, nameVariants); ok {
		r.eagerContribute(res, primaryTicker, nameVariants, exchangeHint)
		return res
	}

	// Step 9: complete failure — negative cache write.
	r.writeNegativeCache(primaryTicker, nameVariants)
	return domain.ResolutionResult{Status: domain.ResolutionUnresolved, Detail: "api_all_failed"}
}

func (r *Resolver) tryLocalCache(tickerVariants, nameVariants []string) (domain.ResolutionResult, bool) {
	for _, tv := range tickerVariants {
		isin, err := r.cache.GetISINByTicker(tv)
		if err != nil {
			r.log.Warn().Err(err).Msg("cache error during ticker lookup, proceeding as miss")
			continue
		}
		if isin != "" {
			return domain.ResolutionResult{ISIN: isin, Status: domain.ResolutionResolved, Detail: "local_cache_hit", Source: domain.SourceLocalTicker, Confidence: domain.ConfidenceLocalCache}, true
		}
	}
	for _, nv := range nameVariants {
		isin, err := r.cache.GetISINByAlias(nv)
		if err != nil {
			r.log.Warn().Err(err).Msg("cache error during alias lookup, proceeding as miss")
			continue
		}
		if isin != "" {
			return domain.ResolutionResult{ISIN: isin, Status: domain.ResolutionResolved, Detail: "local_cache_hit", Source: domain.SourceLocalAlias, Confidence: domain.ConfidenceLocalCache}, true
		}
	}
	return domain.ResolutionResult{}, false
}

func (r *Resolver) tryNegativeCache(primaryTicker string, nameVariants []string) (domain.ResolutionResult, bool) {
	now := time.Now()

	if primaryTicker != "" {
		entry, err := r.cache.GetCachedResolution(primaryTicker, domain.AliasTypeTicker)
		if err == nil && entry.ResolutionStatus == domain.ResolutionUnresolved {
			if entry.ExpiresAt == nil || entry.ExpiresAt.After(now) {
				return domain.ResolutionResult{Status: domain.ResolutionUnresolved, Detail: "cached_negative"}, true
			}
		}
	}
	if len(nameVariants) > 0 {
		entry, err := r.cache.GetCachedResolution(nameVariants[0], domain.AliasTypeName)
		if err == nil && entry.ResolutionStatus == domain.ResolutionUnresolved {
			if entry.ExpiresAt == nil || entry.ExpiresAt.After(now) {
				return domain.ResolutionResult{Status: domain.ResolutionUnresolved, Detail: "cached_negative"}, true
			}
		}
	}
	return domain.ResolutionResult{}, false
}

func (r *Resolver) tryHive(ctx context.Context, tickerVariants, nameVariants []string) (domain.ResolutionResult, bool) {
	if r.hive == nil || !r.hive.Enabled() {
		return domain.ResolutionResult{}, false
	}

	hiveCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for _, tv := range tickerVariants {
		isin, err := r.hive.ResolveTicker(hiveCtx, tv, "")
		if err != nil {
			r.log.Debug().Err(err).Str("variant", tv).Msg("hive resolve_ticker failed, degrading to next step")
			continue
		}
		if isin != "" {
			res := domain.ResolutionResult{ISIN: isin, Status: domain.ResolutionResolved, Detail: "hive_hit", Source: domain.SourceHiveTicker, Confidence: domain.ConfidenceCommunity}
			r.writePositiveCache(res, tv, domain.AliasTypeTicker)
			return res, true
		}
	}
	for _, nv := range nameVariants {
		result, err := r.hive.LookupByAlias(hiveCtx, nv)
		if err != nil {
			r.log.Debug().Err(err).Str("variant", nv).Msg("hive lookup_by_alias failed, degrading to next step")
			continue
		}
		if result != nil {
			res := domain.ResolutionResult{ISIN: result.ISIN, Status: domain.ResolutionResolved, Detail: "hive_hit", Source: domain.SourceHiveAlias, Confidence: domain.ConfidenceCommunity}
			r.writePositiveCache(res, nv, domain.AliasTypeName)
			return res, true
		}
	}

	return domain.ResolutionResult{}, false
}

func (r *Resolver) tryAPICascade(ctx context.Context, primaryTicker string, tickerVariants, nameVariants []string) (domain.ResolutionResult, bool) {
	// 7a. Wikidata: one SPARQL query over all name variants.
	if r.wikidata != nil && len(nameVariants) > 0 {
		wCtx, cancel := context.WithTimeout(ctx, nonZero(r.cfg.WikidataTimeout, 8*time.Second))
		result, err := r.wikidata.Resolve(wCtx, nameVariants)
		cancel()
		r.logFormatAttempt(nameVariants, domain.SourceWikidata, err == nil && result != nil)
		if err != nil {
			r.log.Debug().Err(err).Msg("wikidata resolve failed, degrading to next step")
		} else if result != nil && result.ISIN != "" {
			return domain.ResolutionResult{ISIN: result.ISIN, Status: domain.ResolutionResolved, Detail: "api_hit", Source: domain.SourceWikidata, Confidence: domain.ConfidenceWikidata}, true
		}
	}

	// 7b. Finnhub: one call using the primary ticker variant only.
	if r.finnhub != nil && r.finnhub.Enabled() && primaryTicker != "" {
		fCtx, cancel := context.WithTimeout(ctx, nonZero(r.cfg.FinnhubTimeout, 4*time.Second))
		result, err := r.finnhub.LookupSymbol(fCtx, primaryTicker)
		cancel()
		r.logFormatAttempt([]string{primaryTicker}, domain.SourceFinnhub, err == nil && result != nil && result.ISIN != "")
		if err != nil {
			r.log.Debug().Err(err).Msg("finnhub lookup failed, degrading to next step")
		} else if result != nil && result.ISIN != "" {
			return domain.ResolutionResult{ISIN: result.ISIN, Status: domain.ResolutionResolved, Detail: "api_hit", Source: domain.SourceFinnhub, Confidence: domain.ConfidenceFinnhub}, true
		}
	}

	// 7c. Yahoo-class: top-2 ticker variants, fallbacks only.
	if r.yahoo != nil {
		limit := 2
		if len(tickerVariants) < limit {
			limit = len(tickerVariants)
		}
		for _, tv := range tickerVariants[:limit] {
			yCtx, cancel := context.WithTimeout(ctx, nonZero(r.cfg.YahooTimeout, 6*time.Second))
			isin, err := r.yahoo.LookupISINFromTicker(yCtx, tv)
			cancel()
			r.logFormatAttempt([]string{tv}, domain.SourceYahoo, err == nil && isin != "")
			if err != nil {
				r.log.Debug().Err(err).Str("variant", tv).Msg("yahoo lookup failed, degrading to next step")
				continue
			}
			if isin != "" {
				return domain.ResolutionResult{ISIN: isin, Status: domain.ResolutionResolved, Detail: "api_hit", Source: domain.SourceYahoo, Confidence: domain.ConfidenceYahoo}, true
			}
		}
	}

	return domain.ResolutionResult{}, false
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}

func (r *Resolver) logFormatAttempt(variants []string, apiSource string, success bool) {
	if len(variants) == 0 {
		return
	}
	entry := domain.FormatLogEntry{
		AliasExample: variants[0],
		FormatType:   normalizer.DetectFormat(variants[0]),
		APISource:    apiSource,
		Success:      success,
		AttemptedAt:  time.Now().UTC(),
	}
	if err := r.cache.LogFormatAttempt(entry); err != nil {
		r.log.Debug().Err(err).Msg("failed to record format log attempt")
	}
}

func (r *Resolver) writePositiveCache(res domain.ResolutionResult, alias string, aliasType domain.AliasType) {
	entry := domain.ISINCacheEntry{
		Alias: alias, AliasType: aliasType, ISIN: res.ISIN, Confidence: res.Confidence,
		Source: res.Source, ResolutionStatus: domain.ResolutionResolved, UpdatedAt: time.Now().UTC(),
	}
	if err := r.cache.PutCachedResolution(entry); err != nil {
		r.log.Warn().Err(err).Msg("failed to write positive cache entry")
	}
}

func (r *Resolver) writeNegativeCache(primaryTicker string, nameVariants []string) {
	expires := time.Now().Add(r.cfg.NegativeCacheTTL)
	now := time.Now().UTC()

	if primaryTicker != "" {
		_ = r.cache.PutCachedResolution(domain.ISINCacheEntry{
			Alias: primaryTicker, AliasType: domain.AliasTypeTicker, Confidence: 0,
			Source: "api_all_failed", ResolutionStatus: domain.ResolutionUnresolved, ExpiresAt: &expires, UpdatedAt: now,
		})
	}
	if len(nameVariants) > 0 {
		_ = r.cache.PutCachedResolution(domain.ISINCacheEntry{
			Alias: nameVariants[0], AliasType: domain.AliasTypeName, Confidence: 0,
			Source: "api_all_failed", ResolutionStatus: domain.ResolutionUnresolved, ExpiresAt: &expires, UpdatedAt: now,
		})
	}
}

// eagerContribute upserts the freshly-resolved mapping into the local
// cache immediately and pushes it to the Hive asynchronously — the
// contribution never blocks the resolver (§4.4 step 8).
func (r *Resolver) eagerContribute(res domain.ResolutionResult, primaryTicker string, nameVariants []string, exchangeHint string) {
	aliasType := domain.AliasTypeTicker
	alias := primaryTicker
	if alias == "" && len(nameVariants) > 0 {
		alias = nameVariants[0]
		aliasType = domain.AliasTypeName
	}
	if alias == "" {
		return
	}

	r.writePositiveCache(res, alias, aliasType)

	if r.hive == nil || !r.hive.Enabled() {
		return
	}

	req := hive.ContributeAliasRequest{
		Alias: alias, ISIN: res.ISIN, AliasType: aliasType,
		Source: res.Source, Confidence: res.Confidence,
		ContributorHash: uuid.NewString(),
	}
	// §4.4 step 8: push the exchange/currency if known, via the
	// Bloomberg map ParseTicker already computed (§4.1, Open Question
	// #3 — no broader inference table is implemented).
	if exchangeHint != "" {
		req.Exchange = exchangeHint
		if currency := normalizer.CurrencyForHint(exchangeHint); currency != "" {
			req.Currency = currency
			req.CurrencySource = domain.CurrencySourceInferred
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.hive.ContributeAlias(ctx, req); err != nil {
			r.log.Debug().Err(err).Msg("background contribution to hive failed")
		}
	}()
}
