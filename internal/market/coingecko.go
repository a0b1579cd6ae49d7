// Package market implements the market data provider client. It fetches
// current market snapshots for a batch of assets from the CoinGecko API and
// normalizes them into the internal snapshot shape. The client never retries;
// failures are classified and propagated so the caller owns the retry policy.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Snapshot is one normalized market data entry returned by the provider.
// Entries come back in provider order and unknown ids are omitted, so
// callers must match on ID, never on position.
type Snapshot struct {
	ID                string  `json:"id"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	CurrentPrice      float64 `json:"current_price"`
	MarketCap         float64 `json:"market_cap"`
	MarketCapRank     int     `json:"market_cap_rank"`
	TotalVolume       float64 `json:"total_volume"`
	PriceChange24h    float64 `json:"price_change_24h"`
	PriceChangePct24h float64 `json:"price_change_percentage_24h"`
	PriceChangePct7d  float64 `json:"price_change_percentage_7d_in_currency"`
	PriceChangePct30d float64 `json:"price_change_percentage_30d_in_currency"`
	ATH               float64 `json:"ath"`
	ATHDate           string  `json:"ath_date"`
	ATL               float64 `json:"atl"`
	ATLDate           string  `json:"atl_date"`
}

// Client talks to the CoinGecko markets endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a CoinGecko client. apiKey may be empty; when set it is
// sent as the demo API key header.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Fetch returns market snapshots for the given CoinGecko asset ids, in
// provider-returned order. Throttling responses surface as ErrRateLimited
// and network or server-side failures as ErrProviderUnavailable.
func (c *Client) Fetch(ctx context.Context, assetIDs []string) ([]Snapshot, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	values := url.Values{}
	values.Set("vs_currency", "usd")
	values.Set("ids", strings.Join(assetIDs, ","))
	values.Set("order", "market_cap_desc")
	values.Set("per_page", "250")
	values.Set("page", "1")
	values.Set("sparkline", "false")
	values.Set("price_change_percentage", "24h,7d,30d")
	endpoint := c.baseURL + "/coins/markets?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create markets request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: coingecko status %d", apperrors.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: coingecko status %d: %s",
			apperrors.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snapshots []Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("%w: decode markets response: %v", apperrors.ErrProviderUnavailable, err)
	}

	logger.Log.Info("Fetched market snapshots",
		zap.Int("requested", len(assetIDs)),
		zap.Int("returned", len(snapshots)),
	)

	return snapshots, nil
}

// ParseDate converts a provider timestamp (RFC3339) into a time pointer,
// returning nil for empty or malformed values.
func ParseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}
