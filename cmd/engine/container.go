package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/adapters"
	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/clients/finnhub"
	"github.com/aristath/exposure-engine/internal/clients/wikidata"
	"github.com/aristath/exposure-engine/internal/clients/yahoo"
	"github.com/aristath/exposure-engine/internal/config"
	"github.com/aristath/exposure-engine/internal/decomposer"
	"github.com/aristath/exposure-engine/internal/events"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/ingestion"
	"github.com/aristath/exposure-engine/internal/logging"
	"github.com/aristath/exposure-engine/internal/pipeline"
	"github.com/aristath/exposure-engine/internal/resolver"
	"github.com/aristath/exposure-engine/internal/scheduler"
)

// container holds every long-lived dependency the serve and pipeline
// subcommands wire up, built in the same staged order (databases,
// then clients, then domain components, then jobs) as the teacher's
// own di.Wire.
type container struct {
	cfg *config.Config
	log zerolog.Logger

	store *cache.Store
	bus   *events.Bus

	hiveClient     *hive.Client
	wikidataClient *wikidata.Client
	finnhubClient  *finnhub.Client
	yahooClient    *yahoo.Client

	resolver     *resolver.Resolver
	registry     *adapters.Registry
	manualStore  *adapters.FileManualStore
	decomposer   *decomposer.Decomposer
	ingestor     *ingestion.Ingestor
	orchestrator *pipeline.Orchestrator

	scheduler *scheduler.Scheduler
}

// buildContainer wires every component in dependency order. On error
// it closes whatever was already opened before returning, the same
// cleanup-on-error discipline as di.Wire.
func buildContainer(cfg *config.Config) (*container, error) {
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	store, err := cache.Open(cfg.CachePath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	bus := events.NewBus(log)

	hiveClient := hive.New(hive.Config{
		BaseURL: cfg.HiveBaseURL,
		Token:   cfg.HiveAPIToken,
		Timeout: cfg.Timeouts.Hive,
	}, log)

	wikidataClient := wikidata.New(cfg.Timeouts.Wikidata, log)
	var finnhubClient *finnhub.Client
	if cfg.FinnhubAPIKey != "" {
		finnhubClient = finnhub.New(cfg.FinnhubAPIKey, cfg.Resolver.FinnhubRatePerMinute, cfg.Timeouts.Finnhub, log)
	}
	yahooClient := yahoo.New(log)

	res := resolver.New(resolver.Config{
		Tier1WeightThreshold: cfg.Resolver.Tier1WeightThreshold,
		NegativeCacheTTL:     cfg.Resolver.NegativeCacheTTL,
		WikidataTimeout:      cfg.Timeouts.Wikidata,
		FinnhubTimeout:       cfg.Timeouts.Finnhub,
		YahooTimeout:         cfg.Timeouts.Yahoo,
	}, store, hiveClient, wikidataClient, finnhubClient, yahooClient, log)

	manualStore, err := adapters.NewFileManualStore(cfg.ManualUploadsDir(), log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open manual upload store: %w", err)
	}

	registry := adapters.NewRegistry(manualStore)
	registry.RegisterFallback(adapters.NewHTMLAdapter("https://www.justetf.com/en/etf-profile.html?isin=%s", cfg.Timeouts.Adapter, log))

	decomp := decomposer.New(decomposer.Config{
		Tier1WeightThreshold: cfg.Resolver.Tier1WeightThreshold,
		HoldingsCacheTTL:     24 * time.Hour,
	}, store, hiveClient, registry, res, log)

	orch := pipeline.New(pipeline.Config{
		Tier1WeightThreshold:     cfg.Resolver.Tier1WeightThreshold,
		HealthReportPath:         cfg.HealthReportPath(),
		TrueExposureCSVPath:      cfg.TrueExposureCSVPath(),
		TrueExposureJSONPath:     cfg.TrueExposureJSONPath(),
		HoldingsBreakdownCSVPath: cfg.HoldingsBreakdownCSVPath(),
	}, bus, decomp, res, log)

	sched := scheduler.New(log)

	return &container{
		cfg: cfg, log: log,
		store: store, bus: bus,
		hiveClient: hiveClient, wikidataClient: wikidataClient, finnhubClient: finnhubClient, yahooClient: yahooClient,
		resolver: res, registry: registry, manualStore: manualStore, decomposer: decomp,
		ingestor: ingestion.New(log), orchestrator: orch,
		scheduler: sched,
	}, nil
}

// registerJobs adds the three background jobs to the scheduler, the
// same cron expressions the teacher's scheduler registration uses for
// its own opportunistic/periodic split.
func (c *container) registerJobs() error {
	if err := c.scheduler.AddJob("0 */15 * * * *", scheduler.NewHiveSyncJob(c.store, c.hiveClient, c.log)); err != nil {
		return fmt.Errorf("failed to register hive_sync job: %w", err)
	}
	if err := c.scheduler.AddJob("0 0 * * * *", scheduler.NewNegativeCacheSweepJob(c.store, c.log)); err != nil {
		return fmt.Errorf("failed to register negative_cache_sweep job: %w", err)
	}
	if err := c.scheduler.AddJob("0 0 */6 * * *", scheduler.NewFormatLogRollupJob(c.store, c.log)); err != nil {
		return fmt.Errorf("failed to register format_log_rollup job: %w", err)
	}
	return nil
}

// Close releases every resource the container opened, in reverse
// acquisition order.
func (c *container) Close() {
	c.scheduler.Stop()
	if err := c.store.Close(); err != nil {
		c.log.Error().Err(err).Msg("failed to close local cache")
	}
}
