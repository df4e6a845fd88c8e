// Package metals fetches spot prices from the metals.dev API.
package metals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the metals.dev spot price endpoint.
const DefaultBaseURL = "https://api.metals.dev/v1/metal/spot"

// Config configures the metals client.
type Config struct {
	BaseURL string
	// APIKey is required by the provider.
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client calls the metals.dev spot API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a metals client, applying defaults for zero-value config.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Spot is one day's spot price for a metal. Raw preserves the full API
// response for audit.
type Spot struct {
	Metal string
	Price float64
	High  float64
	Low   float64
	// Date is the calendar day of the quote, midnight UTC.
	Date time.Time
	Raw  json.RawMessage
}

// spotResponse is the provider's envelope.
type spotResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Rate    struct {
		Price float64 `json:"price"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
	} `json:"rate"`
	Timestamp string `json:"timestamp"`
}

// FetchSpot retrieves the current USD spot price for a metal (e.g. "gold").
func (c *Client) FetchSpot(ctx context.Context, metal string) (*Spot, error) {
	if metal == "" {
		return nil, fmt.Errorf("metal required")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("metals api key required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("metal", metal)
	query.Set("currency", "USD")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call metals api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metals api status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metals response: %w", err)
	}

	var envelope spotResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode metals response: %w", err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("metals api failed for %s: %s", metal, envelope.Message)
	}

	date, err := quoteDate(envelope.Timestamp)
	if err != nil {
		return nil, err
	}

	return &Spot{
		Metal: metal,
		Price: envelope.Rate.Price,
		High:  envelope.Rate.High,
		Low:   envelope.Rate.Low,
		Date:  date,
		Raw:   raw,
	}, nil
}

// quoteDate reduces the provider timestamp to its calendar day.
func quoteDate(timestamp string) (time.Time, error) {
	datePart, _, _ := strings.Cut(timestamp, "T")
	date, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse quote timestamp %q: %w", timestamp, err)
	}
	return date, nil
}
