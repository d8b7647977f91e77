// Package restclient implements the REST snapshot client: a single
// stateless operation, fetch(symbol) -> snapshot | error, over an
// unauthenticated GET with no HMAC signing, since a public depth
// snapshot never needs it.
package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

const depthPath = "/fapi/v1/depth"

// Client fetches depth snapshots over plain HTTPS GET. It keeps no
// per-symbol state; every call is independent and safe to retry.
type Client struct {
	baseURL string
	limit   int
	http    *http.Client
}

// New constructs a Client against baseURL (e.g. "https://fapi.binance.com")
// with the given total request timeout (default 30s) and snapshot depth
// limit (default 1000).
func New(baseURL string, timeout time.Duration, limit int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limit <= 0 {
		limit = 1000
	}
	return &Client{
		baseURL: baseURL,
		limit:   limit,
		http:    &http.Client{Timeout: timeout},
	}
}

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// Fetch performs one GET against the depth snapshot endpoint for symbol
// and parses the body into a market.DepthSnapshot. Errors are retryable
// by the caller; this component keeps no state across calls.
func (c *Client) Fetch(ctx context.Context, symbol string) (*market.DepthSnapshot, error) {
	u, err := url.Parse(c.baseURL + depthPath)
	if err != nil {
		return nil, fmt.Errorf("restclient: build url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("limit", fmt.Sprintf("%d", c.limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("restclient: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("restclient: fetch snapshot for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	localTime := time.Now()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("restclient: fetch snapshot for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var body depthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("restclient: decode snapshot for %s: %w", symbol, err)
	}

	return &market.DepthSnapshot{
		LastUpdateID: body.LastUpdateID,
		Bids:         body.Bids,
		Asks:         body.Asks,
		LocalTime:    localTime,
	}, nil
}
