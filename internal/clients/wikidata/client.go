// Package wikidata implements the first API-cascade tier (§4.4 step 7a):
// a single SPARQL query per resolve call against the Wikidata Query
// Service. All name variants are written into one VALUES block, and
// only after each one passes a strict character allowlist; a variant
// outside that allowlist fails the call instead of being escaped.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/domain"
)

const endpoint = "https://query.wikidata.org/sparql"

// safeVariantRE is the allowed character set for a name variant bound
// into the SPARQL VALUES block (§8 "SPARQL builder rejects any variant
// containing characters outside [A-Za-z0-9 .&-]").
var safeVariantRE = regexp.MustCompile(`^[A-Za-z0-9 .&-]*$`)

// Client is a thin net/http SPARQL client; there is no Wikidata SDK in
// the Go ecosystem so this follows the teacher's hand-rolled HTTP
// client pattern for bespoke RPC surfaces (tradernet).
type Client struct {
	httpClient *http.Client
	endpoint   string
	log        zerolog.Logger
}

// New builds a Client with the given soft timeout (§5 default 8s).
func New(timeout time.Duration, log zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		log:        log.With().Str("client", "wikidata").Logger(),
	}
}

// ErrUnsafeVariant is returned instead of ever interpolating an unsafe
// variant into the query text.
type ErrUnsafeVariant struct{ Variant string }

func (e *ErrUnsafeVariant) Error() string {
	return fmt.Sprintf("wikidata: variant %q contains characters outside the allowed set", e.Variant)
}

// buildQuery renders the VALUES-bound SPARQL query over all variants.
// Every variant is validated against safeVariantRE before being bound
// so the query text itself can never carry attacker-controlled syntax.
func buildQuery(variants []string) (string, error) {
	var values strings.Builder
	for _, v := range variants {
		if !safeVariantRE.MatchString(v) {
			return "", &ErrUnsafeVariant{Variant: v}
		}
		values.WriteString(`"` + strings.ReplaceAll(v, `"`, "") + `"@en `)
	}

	query := fmt.Sprintf(`
SELECT ?item ?itemLabel ?isin WHERE {
  VALUES ?nameLabel { %s }
  ?item rdfs:label ?nameLabel.
  ?item wdt:P946 ?isin.
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}
LIMIT 5`, values.String())

	return query, nil
}

// ResolveResult is one Wikidata match.
type ResolveResult struct {
	ISIN  string
	Label string
}

// Resolve issues a single SPARQL query over every name variant and
// returns the first match, or nil on a miss (§4.4 step 7a).
func (c *Client) Resolve(ctx context.Context, variants []string) (*ResolveResult, error) {
	query, err := buildQuery(variants)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build wikidata request: %w", err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", "exposure-engine/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.TimeoutError{Provider: "wikidata"}
		}
		return nil, &domain.NetworkError{Provider: "wikidata", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.RateLimitedError{Provider: "wikidata"}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.NetworkError{Provider: "wikidata", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var parsed struct {
		Results struct {
			Bindings []struct {
				ISIN struct {
					Value string `json:"value"`
				} `json:"isin"`
				ItemLabel struct {
					Value string `json:"value"`
				} `json:"itemLabel"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode wikidata response: %w", err)
	}

	if len(parsed.Results.Bindings) == 0 {
		return nil, nil
	}
	b := parsed.Results.Bindings[0]
	return &ResolveResult{ISIN: b.ISIN.Value, Label: b.ItemLabel.Value}, nil
}
