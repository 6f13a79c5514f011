package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureFeed(t *testing.T) {
	feed := NewFixtureFeed()
	ctx := context.Background()

	t.Run("CannedPrices", func(t *testing.T) {
		price, err := feed.AssetPrice(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, uint64(225_500_000), price)

		ref, err := feed.ReferencePrice(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(50_000_000), ref)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		_, err := feed.AssetPrice(ctx, "NOPE")
		assert.Error(t, err)
	})

	t.Run("Overrides", func(t *testing.T) {
		feed.SetAssetPrice("AAPL", 300_000_000)
		feed.SetReferencePrice(60_000_000)

		price, err := feed.AssetPrice(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, uint64(300_000_000), price)

		ref, err := feed.ReferencePrice(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(60_000_000), ref)
	})
}

func TestLiveFeedReferencePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "solana", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":152.37}}`))
	}))
	defer server.Close()

	feed := &LiveFeed{
		CoinGeckoURL:  server.URL,
		ReferenceCoin: "solana",
		Client:        &http.Client{Timeout: 5 * time.Second},
	}

	price, err := feed.ReferencePrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(152_370_000), price)
}

func TestLiveFeedAssetPrice(t *testing.T) {
	t.Run("ValidQuote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"Global Quote":{"05. price":"225.5000"}}`))
		}))
		defer server.Close()

		feed := &LiveFeed{
			AlphaVantageURL: server.URL,
			APIKey:          "demo",
			Client:          &http.Client{Timeout: 5 * time.Second},
		}

		price, err := feed.AssetPrice(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, uint64(225_500_000), price)
	})

	t.Run("EmptyQuote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		feed := &LiveFeed{
			AlphaVantageURL: server.URL,
			APIKey:          "demo",
			Client:          &http.Client{Timeout: 5 * time.Second},
		}

		_, err := feed.AssetPrice(context.Background(), "AAPL")
		assert.Error(t, err)
	})

	t.Run("ProviderError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		feed := &LiveFeed{
			AlphaVantageURL: server.URL,
			APIKey:          "demo",
			Client:          &http.Client{Timeout: 5 * time.Second},
		}

		_, err := feed.AssetPrice(context.Background(), "AAPL")
		assert.Error(t, err)
	})
}

func TestToFixedPrice(t *testing.T) {
	cases := []struct {
		quote string
		want  uint64
	}{
		{"225.50", 225_500_000},
		{"0.000001", 1},
		{"0.0000009", 0}, // sub-unit precision truncates
		{"152.123456789", 152_123_456},
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.quote)
		require.NoError(t, err)
		assert.Equal(t, tc.want, toFixedPrice(d), "quote %s", tc.quote)
	}
}
