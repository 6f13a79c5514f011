package pricing

import (
	"context"
	"fmt"
	"sync"
)

// FixtureFeed serves canned prices keyed by symbol, for tests and for test
// mode contracts that must settle deterministically without a provider.
type FixtureFeed struct {
	mu        sync.RWMutex
	asset     map[string]uint64
	reference uint64
}

// NewFixtureFeed builds a fixture feed preloaded with frozen quotes
// (USD, 6 implied decimals).
func NewFixtureFeed() *FixtureFeed {
	return &FixtureFeed{
		asset: map[string]uint64{
			// Closing prices captured August 2025.
			"AAPL":  225_500_000,
			"GOOGL": 196_150_000,
			"MSFT":  520_300_000,
			"AMZN":  231_480_000,
			"META":  754_200_000,
		},
		reference: 50_000_000, // $50.00
	}
}

// SetAssetPrice overrides or adds a canned asset quote.
func (f *FixtureFeed) SetAssetPrice(symbol string, price uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asset[symbol] = price
}

// SetReferencePrice overrides the canned reference-currency quote.
func (f *FixtureFeed) SetReferencePrice(price uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reference = price
}

func (f *FixtureFeed) AssetPrice(_ context.Context, symbol string) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.asset[symbol]
	if !ok {
		return 0, fmt.Errorf("no fixture price for symbol %s", symbol)
	}
	return price, nil
}

func (f *FixtureFeed) ReferencePrice(_ context.Context) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reference, nil
}
