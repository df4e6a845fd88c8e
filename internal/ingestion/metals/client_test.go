package metals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
	"status": "success",
	"currency": "USD",
	"unit": "toz",
	"metal": "gold",
	"rate": {"price": 2052.35, "ask": 2053.1, "bid": 2051.6, "high": 2060.8, "low": 2041.2, "change": 4.5, "change_percent": 0.22},
	"timestamp": "2024-02-15T14:30:00.123Z"
}`

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:           baseURL,
		APIKey:            "test-key",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	})
}

func TestClient_FetchSpot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "gold", r.URL.Query().Get("metal"))
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	spot, err := client.FetchSpot(context.Background(), "gold")
	require.NoError(t, err)

	assert.Equal(t, "gold", spot.Metal)
	assert.InDelta(t, 2052.35, spot.Price, 0.0001)
	assert.InDelta(t, 2060.8, spot.High, 0.0001)
	assert.InDelta(t, 2041.2, spot.Low, 0.0001)
	// The quote timestamp is reduced to its calendar day.
	assert.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), spot.Date)
	assert.JSONEq(t, successBody, string(spot.Raw))
}

func TestClient_FetchSpot_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","message":"invalid api key"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchSpot(context.Background(), "gold")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestClient_FetchSpot_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchSpot(context.Background(), "gold")
	assert.Error(t, err)
}

func TestClient_FetchSpot_BadInput(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.FetchSpot(context.Background(), "")
	assert.Error(t, err)

	noKey := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err = noKey.FetchSpot(context.Background(), "gold")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestQuoteDate(t *testing.T) {
	d, err := quoteDate("2024-02-15T14:30:00.123Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), d)

	// A bare date also parses.
	d, err = quoteDate("2024-02-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = quoteDate("")
	assert.Error(t, err)
}
