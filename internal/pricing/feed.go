package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Feed supplies the two price observations settlement needs: the underlying
// asset price and the reference-currency price, both as integers with
// PriceDecimals implied decimals. The engine is agnostic to whether values
// are live-fetched or canned.
type Feed interface {
	AssetPrice(ctx context.Context, symbol string) (uint64, error)
	ReferencePrice(ctx context.Context) (uint64, error)
}

// Observation pins the two price inputs for a single settlement or
// exercise. Operations take a nil Observation to mean "ask the feed";
// pinned values, including zeros, go through the ratio converter's own
// validation untouched.
type Observation struct {
	AssetPrice     uint64 `json:"asset_price"`
	ReferencePrice uint64 `json:"reference_price"`
}

// FetchContext returns the bounded context used for feed lookups made on
// behalf of a settlement or exercise operation.
func FetchContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

const (
	defaultCoinGeckoURL    = "https://api.coingecko.com/api/v3"
	defaultAlphaVantageURL = "https://www.alphavantage.co"
	defaultReferenceCoin   = "solana"
)

// LiveFeed fetches prices over HTTP: the reference currency from CoinGecko
// and equity symbols from Alpha Vantage.
type LiveFeed struct {
	CoinGeckoURL    string
	AlphaVantageURL string
	ReferenceCoin   string
	APIKey          string // Alpha Vantage key
	Client          *http.Client
}

// NewLiveFeed builds a live feed configured from the environment
// (ALPHA_VANTAGE_API_KEY, REFERENCE_COIN).
func NewLiveFeed() *LiveFeed {
	coin := os.Getenv("REFERENCE_COIN")
	if coin == "" {
		coin = defaultReferenceCoin
	}
	apiKey := os.Getenv("ALPHA_VANTAGE_API_KEY")
	if apiKey == "" {
		apiKey = "demo"
	}
	return &LiveFeed{
		CoinGeckoURL:    defaultCoinGeckoURL,
		AlphaVantageURL: defaultAlphaVantageURL,
		ReferenceCoin:   coin,
		APIKey:          apiKey,
		Client:          &http.Client{Timeout: 10 * time.Second},
	}
}

// ReferencePrice fetches the reference currency's USD price from CoinGecko.
func (f *LiveFeed) ReferencePrice(ctx context.Context) (uint64, error) {
	logger := log.With().Str("component", "price_feed").Str("coin", f.ReferenceCoin).Logger()

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		f.CoinGeckoURL, url.QueryEscape(f.ReferenceCoin))

	var body map[string]map[string]float64
	if err := f.getJSON(ctx, endpoint, &body); err != nil {
		logger.Error().Err(err).Msg("reference price request failed")
		return 0, err
	}

	quote, ok := body[f.ReferenceCoin]["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd quote for %s in response", f.ReferenceCoin)
	}

	price := toFixedPrice(decimal.NewFromFloat(quote))
	logger.Debug().Uint64("price", price).Msg("fetched reference price")
	return price, nil
}

// AssetPrice fetches an equity quote from Alpha Vantage.
func (f *LiveFeed) AssetPrice(ctx context.Context, symbol string) (uint64, error) {
	logger := log.With().Str("component", "price_feed").Str("symbol", symbol).Logger()

	endpoint := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		f.AlphaVantageURL, url.QueryEscape(symbol), url.QueryEscape(f.APIKey))

	var body struct {
		GlobalQuote struct {
			Price string `json:"05. price"`
		} `json:"Global Quote"`
	}
	if err := f.getJSON(ctx, endpoint, &body); err != nil {
		logger.Error().Err(err).Msg("asset price request failed")
		return 0, err
	}

	if body.GlobalQuote.Price == "" {
		return 0, fmt.Errorf("no quote for %s (check API key or rate limits)", symbol)
	}

	quote, err := decimal.NewFromString(body.GlobalQuote.Price)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s quote: %w", symbol, err)
	}

	price := toFixedPrice(quote)
	logger.Debug().Uint64("price", price).Msg("fetched asset price")
	return price, nil
}

func (f *LiveFeed) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "optix-api")

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price provider returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// toFixedPrice converts a decimal USD quote into the fixed 6-implied-decimal
// integer unit, truncating sub-unit precision.
func toFixedPrice(quote decimal.Decimal) uint64 {
	return uint64(quote.Shift(PriceDecimals).Truncate(0).IntPart())
}
