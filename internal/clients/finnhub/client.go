// Package finnhub implements the second API-cascade tier (§4.4 step
// 7b): a single call using the primary ticker variant only, guarded by
// a token bucket sized to the provider's free-tier rate limit (§5).
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/domain"
)

const baseURL = "https://finnhub.io/api/v1"

// Client is a thin net/http client. No Finnhub SDK appears anywhere in
// the retrieval pack, so this follows the teacher's hand-rolled HTTP
// client pattern for bespoke RPC surfaces.
type Client struct {
	apiKey     string
	httpClient *http.Client
	bucket     *TokenBucket
	log        zerolog.Logger
}

// New builds a Client. An empty apiKey disables the tier entirely.
func New(apiKey string, ratePerMinute int, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 4 * time.Second
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		bucket:     NewTokenBucket(ratePerMinute, time.Minute),
		log:        log.With().Str("client", "finnhub").Logger(),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// SymbolLookupResult is one Finnhub symbol-lookup match.
type SymbolLookupResult struct {
	Symbol      string
	Description string
	ISIN        string
}

// LookupSymbol calls Finnhub's symbol-lookup endpoint for the primary
// ticker variant only (§4.4 step 7b: "ONE call"). Exceeding the token
// bucket converts the attempt into a miss for the current run (§5) —
// it is never surfaced as a hard failure.
func (c *Client) LookupSymbol(ctx context.Context, ticker string) (*SymbolLookupResult, error) {
	if !c.Enabled() {
		return nil, &domain.NetworkError{Provider: "finnhub", Cause: fmt.Errorf("finnhub disabled: no API key configured")}
	}
	if !c.bucket.Allow() {
		return nil, &domain.RateLimitedError{Provider: "finnhub"}
	}

	q := url.Values{}
	q.Set("q", ticker)
	q.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build finnhub request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.TimeoutError{Provider: "finnhub"}
		}
		return nil, &domain.NetworkError{Provider: "finnhub", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.RateLimitedError{Provider: "finnhub"}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.NetworkError{Provider: "finnhub", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var parsed struct {
		Result []struct {
			Symbol      string `json:"symbol"`
			Description string `json:"description"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode finnhub response: %w", err)
	}
	if len(parsed.Result) == 0 {
		return nil, nil
	}

	best := parsed.Result[0]
	isin, err := c.lookupISIN(ctx, best.Symbol)
	if err != nil {
		// A profile-lookup failure degrades to "match found, ISIN
		// unknown" rather than failing the whole tier.
		c.log.Warn().Err(err).Str("symbol", best.Symbol).Msg("finnhub: failed to resolve ISIN for matched symbol")
	}

	return &SymbolLookupResult{Symbol: best.Symbol, Description: best.Description, ISIN: isin}, nil
}

func (c *Client) lookupISIN(ctx context.Context, symbol string) (string, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/stock/profile2?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		ISIN string `json:"isin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.ISIN, nil
}
