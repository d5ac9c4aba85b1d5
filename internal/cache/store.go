// Package cache implements the Local Cache (C2): an embedded
// transactional store of assets, listings, aliases, the positive/
// negative ISIN cache, and format logs. It is the only component that
// opens the engine's database file.
package cache

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/database"
	"github.com/aristath/exposure-engine/internal/domain"
)

// assetColumns lists the assets table columns explicitly, avoiding
// SELECT * so a schema change can't silently shift a scan.
const assetColumns = `isin, name, asset_class, base_currency, sector, geography, enrichment_status, updated_at`

const listingColumns = `ticker, exchange, isin, currency`

const aliasColumns = `alias, isin, alias_type, language, source, confidence, currency, exchange, currency_source, contributor_hash, contributor_count`

const isinCacheColumns = `alias, alias_type, isin, confidence, source, resolution_status, expires_at, updated_at`

// Store is the Local Cache. A single Store wraps a single database.DB
// handle; all writes are serialized by SQLite's own transaction
// discipline, matching §4.2's "single writer per process" invariant.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// MigrationsDir locates the migrations directory shipped alongside this
// package's source, the way the teacher stack locates its schemas
// directory relative to db.go via runtime.Caller rather than a
// working-directory-relative path.
func MigrationsDir() (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}
	return filepath.Join(filepath.Dir(currentFile), "migrations"), nil
}

// Open opens (and migrates) the Local Cache database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "cache"})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	dir, err := MigrationsDir()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Migrate(dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	return &Store{db: db, log: log.With().Str("component", "cache").Logger()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetAsset returns nil, nil on a miss (§4.2 get_asset).
func (s *Store) GetAsset(isin string) (*domain.Asset, error) {
	row := s.db.Conn().QueryRow("SELECT "+assetColumns+" FROM assets WHERE isin = ?", isin)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.CacheError{Op: "get_asset", Cause: err}
	}
	return a, nil
}

// UpsertAsset inserts or updates an asset record.
func (s *Store) UpsertAsset(a domain.Asset) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			name=excluded.name, asset_class=excluded.asset_class,
			base_currency=excluded.base_currency, sector=excluded.sector,
			geography=excluded.geography, enrichment_status=excluded.enrichment_status,
			updated_at=excluded.updated_at`,
		a.ISIN, a.Name, string(a.AssetClass), a.BaseCurrency, nullable(a.Sector), nullable(a.Geography),
		string(a.EnrichmentStatus), a.UpdatedAt)
	if err != nil {
		return &domain.CacheError{Op: "upsert_asset", Cause: err}
	}
	return nil
}

// GetISINByTicker looks up an ISIN by ticker, case-insensitive on the
// normalized form (§4.2 get_isin_by_ticker). Returns "" on a miss.
func (s *Store) GetISINByTicker(ticker string) (string, error) {
	var isin string
	err := s.db.Conn().QueryRow(
		"SELECT isin FROM listings WHERE UPPER(ticker) = UPPER(?) LIMIT 1", ticker).Scan(&isin)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &domain.CacheError{Op: "get_isin_by_ticker", Cause: err}
	}
	return isin, nil
}

// GetISINByAlias looks up an ISIN by normalized alias (§4.2
// get_isin_by_alias). Returns "" on a miss.
func (s *Store) GetISINByAlias(alias string) (string, error) {
	var isin string
	err := s.db.Conn().QueryRow(
		"SELECT isin FROM aliases WHERE alias = ? ORDER BY confidence DESC LIMIT 1", alias).Scan(&isin)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &domain.CacheError{Op: "get_isin_by_alias", Cause: err}
	}
	return isin, nil
}

// UpsertListing inserts or refreshes a (ticker, exchange) -> isin mapping.
func (s *Store) UpsertListing(l domain.Listing) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO listings (`+listingColumns+`) VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, exchange) DO UPDATE SET isin=excluded.isin, currency=excluded.currency`,
		l.Ticker, l.Exchange, l.ISIN, l.Currency)
	if err != nil {
		return &domain.CacheError{Op: "upsert_listing", Cause: err}
	}
	return nil
}

// UpsertAlias inserts an alias, or on conflict bumps contributor_count
// and keeps the max-confidence source — aliases grow monotonically and
// are never deleted (§3 Lifecycles).
func (s *Store) UpsertAlias(a domain.Alias) error {
	if a.ContributorCount == 0 {
		a.ContributorCount = 1
	}
	_, err := s.db.Conn().Exec(`
		INSERT INTO aliases (`+aliasColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alias, isin) DO UPDATE SET
			contributor_count = aliases.contributor_count + excluded.contributor_count,
			confidence = MAX(aliases.confidence, excluded.confidence),
			source = CASE WHEN excluded.confidence > aliases.confidence THEN excluded.source ELSE aliases.source END`,
		a.Alias, a.ISIN, string(a.AliasType), nullable(a.Language), a.Source, a.Confidence,
		nullable(a.Currency), nullable(a.Exchange), nullable(string(a.CurrencySource)), nullable(a.ContributorHash),
		a.ContributorCount, time.Now().UTC())
	if err != nil {
		return &domain.CacheError{Op: "upsert_alias", Cause: err}
	}
	return nil
}

// GetCachedResolution returns the cached resolution for (alias,
// aliasType), or a zero-value entry with ResolutionStatus="" on a miss
// (§4.2 get_cached_resolution).
func (s *Store) GetCachedResolution(alias string, aliasType domain.AliasType) (domain.ISINCacheEntry, error) {
	row := s.db.Conn().QueryRow(
		"SELECT "+isinCacheColumns+" FROM isin_cache WHERE alias = ? AND alias_type = ?", alias, string(aliasType))
	entry, err := scanISINCacheEntry(row)
	if err == sql.ErrNoRows {
		return domain.ISINCacheEntry{}, nil
	}
	if err != nil {
		return domain.ISINCacheEntry{}, &domain.CacheError{Op: "get_cached_resolution", Cause: err}
	}
	return *entry, nil
}

// PutCachedResolution upserts a cache entry (positive or negative).
func (s *Store) PutCachedResolution(e domain.ISINCacheEntry) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO isin_cache (`+isinCacheColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alias, alias_type) DO UPDATE SET
			isin=excluded.isin, confidence=excluded.confidence, source=excluded.source,
			resolution_status=excluded.resolution_status, expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		e.Alias, string(e.AliasType), nullable(e.ISIN), e.Confidence, e.Source,
		string(e.ResolutionStatus), e.ExpiresAt, e.UpdatedAt)
	if err != nil {
		return &domain.CacheError{Op: "put_cached_resolution", Cause: err}
	}
	return nil
}

// CleanupExpiredNegativeCache sweeps negative entries whose TTL has
// elapsed (§4.2 cleanup_expired_negative_cache). Its only caller is the
// scheduler's hourly negative_cache_sweep cron job.
func (s *Store) CleanupExpiredNegativeCache() (int64, error) {
	res, err := s.db.Conn().Exec(
		"DELETE FROM isin_cache WHERE resolution_status = 'unresolved' AND expires_at IS NOT NULL AND expires_at < ?",
		time.Now().UTC())
	if err != nil {
		return 0, &domain.CacheError{Op: "cleanup_expired_negative_cache", Cause: err}
	}
	return res.RowsAffected()
}

// LastSync returns the last recorded sync time, or the zero time if
// the cache has never synced.
func (s *Store) LastSync() (time.Time, error) {
	var t sql.NullTime
	err := s.db.Conn().QueryRow("SELECT last_sync_at FROM sync_state WHERE id = 1").Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &domain.CacheError{Op: "last_sync", Cause: err}
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}

// IsStale reports whether the cache has not synced within threshold.
func (s *Store) IsStale(threshold time.Duration) (bool, error) {
	last, err := s.LastSync()
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return time.Since(last) > threshold, nil
}

// Stats is the row-count snapshot returned to the health_check IPC
// command (§6).
type Stats struct {
	Assets      int64
	Listings    int64
	Aliases     int64
	ETFHoldings int64
}

// CacheStats counts rows in each identity-domain table for health_check.
func (s *Store) CacheStats() (Stats, error) {
	var st Stats
	for table, dst := range map[string]*int64{
		"assets":       &st.Assets,
		"listings":     &st.Listings,
		"aliases":      &st.Aliases,
		"etf_holdings": &st.ETFHoldings,
	} {
		if err := s.db.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(dst); err != nil {
			return Stats{}, &domain.CacheError{Op: "cache_stats", Cause: err}
		}
	}
	return st, nil
}

// MarkSynced records the current time as the last sync moment.
func (s *Store) MarkSynced() error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO sync_state (id, last_sync_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_sync_at=excluded.last_sync_at`, time.Now().UTC())
	if err != nil {
		return &domain.CacheError{Op: "mark_synced", Cause: err}
	}
	return nil
}

// LogFormatAttempt records one API attempt for observability (§4.2,
// §4.4 "Format observability"). The core does not reorder variants
// based on these stats — the hook exists, the optimization does not.
func (s *Store) LogFormatAttempt(entry domain.FormatLogEntry) error {
	_, err := s.db.Conn().Exec(
		"INSERT INTO format_log (alias_example, format_type, api_source, success, attempted_at) VALUES (?, ?, ?, ?, ?)",
		entry.AliasExample, string(entry.FormatType), entry.APISource, entry.Success, entry.AttemptedAt)
	if err != nil {
		return &domain.CacheError{Op: "log_format_attempt", Cause: err}
	}
	return nil
}

// FormatStats is one row of aggregated format-log observability.
type FormatStats struct {
	APISource    string
	FormatType   domain.FormatType
	Attempts     int
	Successes    int
	SuccessRatio float64
}

// GetFormatStats aggregates the format log by (api_source, format_type).
func (s *Store) GetFormatStats() ([]FormatStats, error) {
	rows, err := s.db.Conn().Query(`
		SELECT api_source, format_type, COUNT(*), SUM(success)
		FROM format_log GROUP BY api_source, format_type`)
	if err != nil {
		return nil, &domain.CacheError{Op: "get_format_stats", Cause: err}
	}
	defer rows.Close()

	var out []FormatStats
	for rows.Next() {
		var st FormatStats
		var formatType string
		var successes int
		if err := rows.Scan(&st.APISource, &formatType, &st.Attempts, &successes); err != nil {
			return nil, &domain.CacheError{Op: "get_format_stats", Cause: err}
		}
		st.FormatType = domain.FormatType(formatType)
		st.Successes = successes
		if st.Attempts > 0 {
			st.SuccessRatio = float64(successes) / float64(st.Attempts)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var a domain.Asset
	var assetClass, enrichmentStatus string
	var sector, geography sql.NullString
	if err := row.Scan(&a.ISIN, &a.Name, &assetClass, &a.BaseCurrency, &sector, &geography, &enrichmentStatus, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AssetClass = domain.AssetClass(assetClass)
	a.EnrichmentStatus = domain.EnrichmentStatus(enrichmentStatus)
	a.Sector = sector.String
	a.Geography = geography.String
	return &a, nil
}

func scanISINCacheEntry(row rowScanner) (*domain.ISINCacheEntry, error) {
	var e domain.ISINCacheEntry
	var aliasType, status string
	var isin sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&e.Alias, &aliasType, &isin, &e.Confidence, &e.Source, &status, &expiresAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.AliasType = domain.AliasType(aliasType)
	e.ResolutionStatus = domain.ResolutionStatus(status)
	e.ISIN = isin.String
	if expiresAt.Valid {
		t := expiresAt.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}
