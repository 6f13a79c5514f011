package pricing

import (
	"math/bits"

	"github.com/ksred/optix-api/internal/types"
)

// RatioScale is the fixed-point scale for asset/reference exchange ratios.
const RatioScale = 1_000_000_000

// PriceDecimals is the implied decimal count of raw feed prices.
const PriceDecimals = 6

// Ratio converts two independently priced quantities into a single exchange
// ratio: floor(assetPrice * RatioScale / refPrice). The multiplication runs
// in 128 bits; a quotient that does not fit back into 64 bits is rejected
// rather than silently wrapped.
func Ratio(assetPrice, refPrice uint64) (uint64, error) {
	if refPrice == 0 {
		return 0, types.ErrInvalidPrice
	}
	hi, lo := bits.Mul64(assetPrice, RatioScale)
	if hi >= refPrice {
		// quotient would exceed 64 bits
		return 0, types.ErrCalculationOverflow
	}
	quo, _ := bits.Div64(hi, lo, refPrice)
	return quo, nil
}

// AbsDiff returns |a - b| without underflow.
func AbsDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
