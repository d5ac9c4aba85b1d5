// Package yahoo wraps go-yfinance's lookup API for the Yahoo-class tier
// of the Identity Resolver cascade (§4.4 step 7c): the last, lowest-
// confidence, fallback-only API tier.
package yahoo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/lookup"

	"github.com/aristath/exposure-engine/internal/domain"
)

// Client mirrors the shape of the teacher's yahoo.NativeClient:
// stateless beyond its logger, constructing a fresh lookup session per
// call (the go-yfinance lookup client is itself the network boundary).
type Client struct {
	log zerolog.Logger
}

// New builds a Client.
func New(log zerolog.Logger) *Client {
	return &Client{log: log.With().Str("client", "yahoo").Logger()}
}

// LookupISINFromTicker resolves a ticker's ISIN the way the teacher's
// LookupTickerFromISIN resolves an ISIN's ticker — via lookup.New(query)
// followed by .Stock(1), taking the first equity result.
func (c *Client) LookupISINFromTicker(ctx context.Context, ticker string) (string, error) {
	if ticker == "" {
		return "", fmt.Errorf("ticker cannot be empty")
	}

	lookupClient, err := lookup.New(ticker)
	if err != nil {
		return "", &domain.NetworkError{Provider: "yahoo", Cause: err}
	}
	defer lookupClient.Close()

	results, err := lookupClient.Stock(1)
	if err != nil {
		return "", &domain.NetworkError{Provider: "yahoo", Cause: err}
	}
	if len(results) == 0 {
		return "", nil
	}

	return results[0].ISIN, nil
}

// LookupTickerFromISIN is the inverse direction, a ticker for an ISIN
// already on file — a direct port of the teacher's own method of the
// same name. Nothing in the engine calls it.
func (c *Client) LookupTickerFromISIN(ctx context.Context, isin string) (string, error) {
	if isin == "" {
		return "", fmt.Errorf("ISIN cannot be empty")
	}

	lookupClient, err := lookup.New(isin)
	if err != nil {
		return "", &domain.NetworkError{Provider: "yahoo", Cause: err}
	}
	defer lookupClient.Close()

	results, err := lookupClient.Stock(1)
	if err != nil {
		return "", &domain.NetworkError{Provider: "yahoo", Cause: err}
	}
	if len(results) == 0 {
		return "", nil
	}

	return results[0].Symbol, nil
}
