package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/exposure-engine/internal/domain"
)

// GetETFHoldings returns the cached, content-addressed holdings for an
// ETF ISIN if present and not older than maxAge (§4.6 step 1).
func (s *Store) GetETFHoldings(etfISIN string, maxAge time.Duration) ([]domain.ETFHoldingEdge, bool, error) {
	rows, err := s.db.Conn().Query(
		"SELECT etf_isin, holding_isin, weight, confidence, last_updated, source FROM etf_holdings WHERE etf_isin = ?",
		etfISIN)
	if err != nil {
		return nil, false, &domain.CacheError{Op: "get_etf_holdings", Cause: err}
	}
	defer rows.Close()

	var edges []domain.ETFHoldingEdge
	var newest time.Time
	for rows.Next() {
		var e domain.ETFHoldingEdge
		var source sql.NullString
		if err := rows.Scan(&e.ETFISIN, &e.HoldingISIN, &e.Weight, &e.Confidence, &e.LastUpdated, &source); err != nil {
			return nil, false, &domain.CacheError{Op: "get_etf_holdings", Cause: err}
		}
		e.Source = source.String
		if e.LastUpdated.After(newest) {
			newest = e.LastUpdated
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, &domain.CacheError{Op: "get_etf_holdings", Cause: err}
	}

	if len(edges) == 0 {
		return nil, false, nil
	}
	if time.Since(newest) > maxAge {
		return edges, false, nil
	}
	return edges, true, nil
}

// PutETFHoldings replaces the cached holdings for an ETF ISIN.
func (s *Store) PutETFHoldings(etfISIN string, edges []domain.ETFHoldingEdge) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return &domain.CacheError{Op: "put_etf_holdings", Cause: err}
	}

	if _, err := tx.Exec("DELETE FROM etf_holdings WHERE etf_isin = ?", etfISIN); err != nil {
		_ = tx.Rollback()
		return &domain.CacheError{Op: "put_etf_holdings", Cause: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO etf_holdings (etf_isin, holding_isin, weight, confidence, last_updated, source)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return &domain.CacheError{Op: "put_etf_holdings", Cause: err}
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.Exec(etfISIN, e.HoldingISIN, e.Weight, e.Confidence, e.LastUpdated, nullable(e.Source)); err != nil {
			_ = tx.Rollback()
			return &domain.CacheError{Op: "put_etf_holdings", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.CacheError{Op: "put_etf_holdings", Cause: err}
	}
	return nil
}

// IdentityDomainPage is one page of the community store's bulk sync
// response (§4.3 sync_identity_domain).
type IdentityDomainPage struct {
	Assets   []domain.Asset
	Listings []domain.Listing
	Aliases  []domain.Alias
}

// IdentityDomainSource is the minimal surface SyncFrom needs from the
// Community Store Client, kept local to avoid an import cycle between
// cache (C2) and hive (C3) — the resolver wires the two together.
type IdentityDomainSource interface {
	SyncIdentityDomain(page int) (IdentityDomainPage, bool, error)
}

// SyncCounts reports how many rows SyncFrom wrote.
type SyncCounts struct {
	Assets   int
	Listings int
	Aliases  int
}

// SyncFrom pulls the full identity domain from remote page by page and
// upserts it locally (§4.2 sync_from). Storage failures on individual
// rows are logged and skipped rather than aborting the whole sync.
func (s *Store) SyncFrom(remote IdentityDomainSource) (SyncCounts, error) {
	var counts SyncCounts
	page := 1
	for {
		batch, hasMore, err := remote.SyncIdentityDomain(page)
		if err != nil {
			return counts, fmt.Errorf("failed to fetch identity domain page %d: %w", page, err)
		}

		for _, a := range batch.Assets {
			if err := s.UpsertAsset(a); err != nil {
				s.log.Warn().Err(err).Str("isin", a.ISIN).Msg("sync: failed to upsert asset")
				continue
			}
			counts.Assets++
		}
		for _, l := range batch.Listings {
			if err := s.UpsertListing(l); err != nil {
				s.log.Warn().Err(err).Str("ticker", l.Ticker).Msg("sync: failed to upsert listing")
				continue
			}
			counts.Listings++
		}
		for _, al := range batch.Aliases {
			if err := s.UpsertAlias(al); err != nil {
				s.log.Warn().Err(err).Str("alias", al.Alias).Msg("sync: failed to upsert alias")
				continue
			}
			counts.Aliases++
		}

		if !hasMore {
			break
		}
		page++
	}

	if err := s.MarkSynced(); err != nil {
		return counts, err
	}
	return counts, nil
}
