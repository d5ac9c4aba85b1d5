// Package config loads the engine's configuration from the environment
// (and an optional .env file), the way the rest of the stack does it:
// string/int/bool helpers with safe defaults, and a data directory
// resolved to an absolute, created-if-missing path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the engine's runtime configuration. Every field has a
// safe default; missing external-API credentials degrade the resolver
// cascade and the Hive client to read-only or skip, never a fatal error.
type Config struct {
	DataDir string // base directory for the local cache DB and holdings cache, always absolute
	LogLevel string
	LogPretty bool

	HTTPPort int

	HiveBaseURL   string // community store base URL, empty disables the Hive tiers
	HiveAPIToken  string
	FinnhubAPIKey string // empty disables the Finnhub cascade tier

	Resolver ResolverConfig
	Timeouts TimeoutConfig
}

// ResolverConfig tunes the identity resolution cascade (§4.4).
type ResolverConfig struct {
	// Tier1WeightThreshold is the minimum holding weight (fraction of the
	// containing ETF/portfolio) that qualifies as Tier 1 and may incur
	// network calls. Open Question #1: kept configurable, default 0.5%.
	Tier1WeightThreshold float64

	// NegativeCacheTTL bounds how long an unresolved alias is treated as
	// a cached miss before the cascade is retried.
	NegativeCacheTTL time.Duration

	// StaleAfter is the age beyond which the local cache is considered
	// stale relative to the Hive (§3 Lifecycles, default >24h).
	StaleAfter time.Duration

	// FinnhubRatePerMinute sizes the Finnhub token bucket to the
	// provider's free-tier limit (§5 Rate limiting).
	FinnhubRatePerMinute int
}

// TimeoutConfig carries the soft per-step timeouts from §5.
type TimeoutConfig struct {
	Wikidata time.Duration
	Finnhub  time.Duration
	Yahoo    time.Duration
	Hive     time.Duration
	Adapter  time.Duration
}

// Load reads configuration from the environment, optionally overriding
// the data directory with dataDirOverride (e.g. a CLI flag).
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("ENGINE_DATA_DIR", "")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			dataDir = filepath.Join(home, ".exposure-engine")
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		HTTPPort:  getEnvAsInt("ENGINE_PORT", 8090),

		HiveBaseURL:   getEnv("HIVE_BASE_URL", ""),
		HiveAPIToken:  getEnv("HIVE_API_TOKEN", ""),
		FinnhubAPIKey: getEnv("FINNHUB_API_KEY", ""),

		Resolver: ResolverConfig{
			Tier1WeightThreshold: getEnvAsFloat("RESOLVER_TIER1_THRESHOLD", 0.005),
			NegativeCacheTTL:     time.Duration(getEnvAsInt("RESOLVER_NEGATIVE_CACHE_TTL_HOURS", 168)) * time.Hour,
			StaleAfter:           time.Duration(getEnvAsInt("RESOLVER_STALE_AFTER_HOURS", 24)) * time.Hour,
			FinnhubRatePerMinute: getEnvAsInt("FINNHUB_RATE_PER_MINUTE", 60),
		},
		Timeouts: TimeoutConfig{
			Wikidata: time.Duration(getEnvAsInt("TIMEOUT_WIKIDATA_SECONDS", 8)) * time.Second,
			Finnhub:  time.Duration(getEnvAsInt("TIMEOUT_FINNHUB_SECONDS", 4)) * time.Second,
			Yahoo:    time.Duration(getEnvAsInt("TIMEOUT_YAHOO_SECONDS", 6)) * time.Second,
			Hive:     time.Duration(getEnvAsInt("TIMEOUT_HIVE_SECONDS", 3)) * time.Second,
			Adapter:  time.Duration(getEnvAsInt("TIMEOUT_ADAPTER_SECONDS", 15)) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency. External API credentials
// are intentionally not required here — their absence simply disables
// the corresponding cascade tier, it never fails startup.
func (c *Config) Validate() error {
	if c.Resolver.Tier1WeightThreshold < 0 || c.Resolver.Tier1WeightThreshold > 1 {
		return fmt.Errorf("resolver tier1 threshold must be within [0,1], got %v", c.Resolver.Tier1WeightThreshold)
	}
	return nil
}

// CachePath is the embedded SQLite file the Local Cache (C2) owns.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// HoldingsCacheDir is the on-disk, content-addressed adapter artifact
// cache (§6 Local persistence layout).
func (c *Config) HoldingsCacheDir() string {
	return filepath.Join(c.DataDir, "holdings-cache")
}

// ManualUploadsDir stores user-provided ETF holdings files accepted via
// the upload_holdings_file IPC command (§6), one file per ETF ISIN
// (named <ISIN><original extension>) so a later adapter cascade run can
// find them (§4.5 tier 1).
func (c *Config) ManualUploadsDir() string {
	return filepath.Join(c.DataDir, "manual-uploads")
}

// HealthReportPath is the stable JSON path the orchestrator writes the
// health report to atomically (§4.8).
func (c *Config) HealthReportPath() string {
	return filepath.Join(c.DataDir, "pipeline_health.json")
}

// TrueExposureJSONPath, TrueExposureCSVPath, and HoldingsBreakdownCSVPath
// are the other canonical UI-consumption outputs (§6).
func (c *Config) TrueExposureJSONPath() string {
	return filepath.Join(c.DataDir, "true_exposure.json")
}

func (c *Config) TrueExposureCSVPath() string {
	return filepath.Join(c.DataDir, "true_exposure.csv")
}

func (c *Config) HoldingsBreakdownCSVPath() string {
	return filepath.Join(c.DataDir, "holdings_breakdown.csv")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
