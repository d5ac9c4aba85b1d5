// Package hive implements the Community Store Client (C3): the only
// component that talks to the remote identity database ("the Hive").
// All other components reach it through the resolver façade.
package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/domain"
)

// Client is a typed RPC client over the community store's HTTP surface,
// following the same authorized-request shape the teacher's tradernet
// SDK client uses: a base URL swappable for tests, a bearer token, and
// a bounded per-call timeout rather than the package-global client.
type Client struct {
	baseURL    string
	wsURL      string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// Config configures a new Client.
type Config struct {
	BaseURL string // empty disables the Hive entirely
	WSURL   string
	Token   string
	Timeout time.Duration
}

// New builds a Client. An empty BaseURL is valid — every request method
// then returns a *domain.NetworkError without making a request, and
// Enabled reports false so callers can skip the Hive entirely.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		wsURL:      cfg.WSURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "hive").Logger(),
	}
}

// Enabled reports whether the Hive has a configured endpoint at all.
func (c *Client) Enabled() bool { return c.baseURL != "" }

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if !c.Enabled() {
		return &domain.NetworkError{Provider: "hive", Cause: fmt.Errorf("hive disabled: no base URL configured")}
	}

	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal hive request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build hive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &domain.TimeoutError{Provider: "hive"}
		}
		return &domain.NetworkError{Provider: "hive", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitedError{Provider: "hive"}
	}
	if resp.StatusCode >= 500 {
		return &domain.NetworkError{Provider: "hive", Cause: fmt.Errorf("hive returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("hive rejected request: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode hive response: %w", err)
	}
	return nil
}

var _ cache.IdentityDomainSource = (*Client)(nil)
