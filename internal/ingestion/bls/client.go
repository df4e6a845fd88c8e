// Package bls fetches timeseries data from the U.S. Bureau of Labor
// Statistics public API.
package bls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the BLS public API v1 timeseries endpoint.
const DefaultBaseURL = "https://api.bls.gov/publicAPI/v1/timeseries/data/"

// statusSucceeded is the API's success marker.
const statusSucceeded = "REQUEST_SUCCEEDED"

// maxYearsPerRequest is the API's span limit for a single request.
const maxYearsPerRequest = 10

// Config configures the BLS client.
type Config struct {
	BaseURL string
	// APIKey enables the higher registered-user quota; optional.
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; the public quota is
	// small (25/day unregistered), so default well below one per second.
	RequestsPerSecond float64
}

// Client calls the BLS timeseries API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a BLS client, applying defaults for zero-value config.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 0.5
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// DataPoint is one period's value within a BLS series. Raw preserves the
// point exactly as the API returned it.
type DataPoint struct {
	Year       string `json:"year"`
	Period     string `json:"period"`
	PeriodName string `json:"periodName"`
	Value      string `json:"value"`

	Raw json.RawMessage `json:"-"`
}

// Monthly reports whether the point covers a calendar month (period
// M01..M12). M13 is the annual average and is not a chartable month.
func (p DataPoint) Monthly() bool {
	if !strings.HasPrefix(p.Period, "M") || len(p.Period) != 3 {
		return false
	}
	month, err := strconv.Atoi(p.Period[1:])
	return err == nil && month >= 1 && month <= 12
}

// Date maps the point's year and period to the first day of its month.
func (p DataPoint) Date() (time.Time, error) {
	if !p.Monthly() {
		return time.Time{}, fmt.Errorf("period %q is not a calendar month", p.Period)
	}
	year, err := strconv.Atoi(p.Year)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse year %q: %w", p.Year, err)
	}
	month, _ := strconv.Atoi(p.Period[1:])
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// FloatValue parses the point's value.
func (p DataPoint) FloatValue() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", p.Value, err)
	}
	return v, nil
}

// seriesRequest is the POST body of a timeseries query.
type seriesRequest struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear"`
	EndYear         string   `json:"endyear"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

// seriesResponse is the API envelope. Points are kept raw so each can be
// stored verbatim alongside its parsed form.
type seriesResponse struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []struct {
			SeriesID string            `json:"seriesID"`
			Data     []json.RawMessage `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

// FetchSeries retrieves all data points for a series within [startYear,
// endYear]. Points with empty values (not yet published periods) are
// dropped. Spans wider than the API's per-request limit are chunked.
func (c *Client) FetchSeries(ctx context.Context, seriesID string, startYear, endYear int) ([]DataPoint, error) {
	if seriesID == "" {
		return nil, fmt.Errorf("series id required")
	}
	if startYear > endYear {
		return nil, fmt.Errorf("start year %d after end year %d", startYear, endYear)
	}

	var points []DataPoint
	for from := startYear; from <= endYear; from += maxYearsPerRequest {
		to := from + maxYearsPerRequest - 1
		if to > endYear {
			to = endYear
		}
		chunk, err := c.fetchYears(ctx, seriesID, from, to)
		if err != nil {
			return nil, err
		}
		points = append(points, chunk...)
	}
	return points, nil
}

// fetchYears performs a single API request for one year span.
func (c *Client) fetchYears(ctx context.Context, seriesID string, startYear, endYear int) ([]DataPoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(seriesRequest{
		SeriesID:        []string{seriesID},
		StartYear:       strconv.Itoa(startYear),
		EndYear:         strconv.Itoa(endYear),
		RegistrationKey: c.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call bls api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bls api status %d", resp.StatusCode)
	}

	var envelope seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode bls response: %w", err)
	}

	if envelope.Status != statusSucceeded {
		return nil, fmt.Errorf("bls api failed for %s: %s", seriesID, strings.Join(envelope.Message, "; "))
	}
	if len(envelope.Results.Series) == 0 {
		return nil, fmt.Errorf("bls response has no series for %s", seriesID)
	}

	var points []DataPoint
	for _, raw := range envelope.Results.Series[0].Data {
		var p DataPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal data point: %w", err)
		}
		if strings.TrimSpace(p.Value) == "" {
			continue
		}
		p.Raw = raw
		points = append(points, p)
	}
	return points, nil
}
