package hive

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/domain"
)

// ResolveTicker implements §4.3 resolve_ticker. Returns "" on a miss,
// never an error for a plain not-found — only transport/rate-limit
// faults are errors, matching the resolver's degrade-on-miss contract.
func (c *Client) ResolveTicker(ctx context.Context, ticker, exchange string) (string, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	if exchange != "" {
		q.Set("exchange", exchange)
	}

	var out struct {
		ISIN string `json:"isin"`
	}
	if err := c.doJSON(ctx, "GET", "/v1/resolve-ticker?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.ISIN, nil
}

// BatchResolveTickers implements §4.3 batch_resolve_tickers, chunking
// the ticker list at chunk (default 100 per the spec).
func (c *Client) BatchResolveTickers(ctx context.Context, tickers []string, chunk int) (map[string]string, error) {
	if chunk <= 0 {
		chunk = 100
	}
	result := make(map[string]string, len(tickers))

	for start := 0; start < len(tickers); start += chunk {
		end := start + chunk
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[start:end]

		var out struct {
			Results map[string]string `json:"results"`
		}
		if err := c.doJSON(ctx, "POST", "/v1/batch-resolve-tickers", map[string]interface{}{"tickers": batch}, &out); err != nil {
			return result, err
		}
		for k, v := range out.Results {
			result[k] = v
		}
	}

	return result, nil
}

// AliasLookupResult is the §4.3 lookup_by_alias response shape.
type AliasLookupResult struct {
	ISIN       string
	Source     string
	Confidence float64
	Currency   string
	Exchange   string
}

// LookupByAlias implements §4.3 lookup_by_alias. Returns nil on a miss.
func (c *Client) LookupByAlias(ctx context.Context, alias string) (*AliasLookupResult, error) {
	q := url.Values{}
	q.Set("alias", alias)

	var out struct {
		ISIN       string  `json:"isin"`
		Source     string  `json:"source"`
		Confidence float64 `json:"confidence"`
		Currency   string  `json:"currency"`
		Exchange   string  `json:"exchange"`
	}
	if err := c.doJSON(ctx, "GET", "/v1/lookup-alias?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.ISIN == "" {
		return nil, nil
	}
	return &AliasLookupResult{
		ISIN: out.ISIN, Source: out.Source, Confidence: out.Confidence,
		Currency: out.Currency, Exchange: out.Exchange,
	}, nil
}

// GetETFHoldings implements §4.3 get_etf_holdings.
func (c *Client) GetETFHoldings(ctx context.Context, etfISIN string) ([]domain.ETFHoldingEdge, error) {
	var out struct {
		Edges []domain.ETFHoldingEdge `json:"edges"`
	}
	if err := c.doJSON(ctx, "GET", "/v1/etf-holdings/"+url.PathEscape(etfISIN), nil, &out); err != nil {
		return nil, err
	}
	return out.Edges, nil
}

// SyncIdentityDomain implements §4.3 sync_identity_domain and satisfies
// cache.IdentityDomainSource so the Local Cache can pull bulk pages
// without importing this package's concrete type.
func (c *Client) SyncIdentityDomain(page int) (cache.IdentityDomainPage, bool, error) {
	ctx := context.Background()
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("page_size", "1000")

	var out struct {
		Assets   []domain.Asset   `json:"assets"`
		Listings []domain.Listing `json:"listings"`
		Aliases  []domain.Alias   `json:"aliases"`
		HasMore  bool             `json:"has_more"`
	}
	if err := c.doJSON(ctx, "GET", "/v1/sync-identity-domain?"+q.Encode(), nil, &out); err != nil {
		return cache.IdentityDomainPage{}, false, err
	}
	return cache.IdentityDomainPage{Assets: out.Assets, Listings: out.Listings, Aliases: out.Aliases}, out.HasMore, nil
}

// ContributeListing implements §4.3 contribute_listing. Best-effort:
// callers should not block the resolver on its result (§4.4 step 8).
func (c *Client) ContributeListing(ctx context.Context, l domain.Listing) error {
	return c.doJSON(ctx, "POST", "/v1/contribute-listing", l, nil)
}

// ContributeAliasRequest is the §4.3 contribute_alias payload.
type ContributeAliasRequest struct {
	Alias           string                `json:"alias"`
	ISIN            string                `json:"isin"`
	AliasType       domain.AliasType      `json:"alias_type"`
	Language        string                `json:"language,omitempty"`
	Source          string                `json:"source"`
	Confidence      float64               `json:"confidence"`
	Currency        string                `json:"currency,omitempty"`
	Exchange        string                `json:"exchange,omitempty"`
	CurrencySource  domain.CurrencySource `json:"currency_source,omitempty"`
	ContributorHash string                `json:"contributor_hash,omitempty"`
}

// ContributeAlias implements §4.3 contribute_alias.
func (c *Client) ContributeAlias(ctx context.Context, req ContributeAliasRequest) error {
	return c.doJSON(ctx, "POST", "/v1/contribute-alias", req, nil)
}

// BatchContributeAssets implements §4.3 batch_contribute_assets.
func (c *Client) BatchContributeAssets(ctx context.Context, assets []domain.Asset) error {
	return c.doJSON(ctx, "POST", "/v1/batch-contribute-assets", map[string]interface{}{"assets": assets}, nil)
}

// ContributeETFHoldings pushes a normalized decomposition back to the
// community store (contribute_holdings_to_hive, §6), the opt-in
// counterpart to GetETFHoldings. Best-effort, same as ContributeListing.
func (c *Client) ContributeETFHoldings(ctx context.Context, etfISIN string, edges []domain.ETFHoldingEdge) error {
	return c.doJSON(ctx, "POST", "/v1/contribute-etf-holdings", map[string]interface{}{
		"etf_isin": etfISIN,
		"edges":    edges,
	}, nil)
}
