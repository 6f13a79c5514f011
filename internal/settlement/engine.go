package settlement

import (
	"math/bits"
	"time"

	"github.com/ksred/optix-api/internal/pricing"
	"github.com/ksred/optix-api/internal/types"
)

// Outcome describes what one mark-to-market pass did to a contract.
type Outcome struct {
	CurrentRatio   uint64 `json:"current_ratio"`
	ReferenceRatio uint64 `json:"reference_ratio"`
	BuyerGain      uint64 `json:"buyer_gain"`
	SellerGain     uint64 `json:"seller_gain"`
	Transferred    uint64 `json:"transferred"`
	MarginCalled   bool   `json:"margin_called"`
}

// Apply runs one daily settlement against the record in place. It is a pure
// function of (record, clock, price inputs): callers persist the mutated
// record, and any error means the record was not touched.
//
// The pass computes the current asset/reference ratio, attributes the move
// since the last settled ratio (or the strike on the first pass) to one
// side, and shifts that much margin from loser to winner. A loss that would
// push the loser to or below the margin-call threshold (20% of initial
// margin) is clamped: the loser is floored exactly at the threshold, the
// winner receives the clamped difference, and the contract terminates as
// MARGIN_CALLED.
func Apply(rec *types.OptionContract, now time.Time, assetPrice, refPrice uint64) (*Outcome, error) {
	if rec.Status != types.StatusOwned {
		return nil, types.ErrNotOwned
	}

	if !rec.IsTest {
		if now.Unix() >= rec.ExpiryDate {
			return nil, types.ErrContractExpired
		}
		if now.Unix() < rec.LastSettlementDate+int64(types.SettlementInterval/time.Second) {
			return nil, types.ErrSettlementTooSoon
		}
	}

	currentRatio, err := pricing.Ratio(assetPrice, refPrice)
	if err != nil {
		return nil, err
	}

	// First settlement measures against the strike.
	referenceRatio := rec.LastSettlementRatio
	if referenceRatio == 0 {
		referenceRatio = rec.Strike
	}

	diff := pricing.AbsDiff(currentRatio, referenceRatio)
	buyerGain, sellerGain := attributeGain(rec.Kind, currentRatio, referenceRatio, diff)

	threshold, err := marginThreshold(rec.InitialMargin)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		CurrentRatio:   currentRatio,
		ReferenceRatio: referenceRatio,
		BuyerGain:      buyerGain,
		SellerGain:     sellerGain,
	}

	sellerMargin := rec.SellerMargin
	buyerMargin := rec.BuyerMargin

	switch {
	case buyerGain > 0:
		if buyerGain >= sellerMargin || saturatingSub(sellerMargin, buyerGain) <= threshold {
			// Clamp: the seller is floored exactly at the threshold
			// regardless of the size of the gain.
			maxTransfer := saturatingSub(sellerMargin, threshold)
			buyerMargin, err = checkedAdd(buyerMargin, maxTransfer)
			if err != nil {
				return nil, err
			}
			sellerMargin = threshold
			out.Transferred = maxTransfer
			out.MarginCalled = true
		} else {
			buyerMargin, err = checkedAdd(buyerMargin, buyerGain)
			if err != nil {
				return nil, err
			}
			sellerMargin, err = checkedSub(sellerMargin, buyerGain)
			if err != nil {
				return nil, err
			}
			out.Transferred = buyerGain
		}
	case sellerGain > 0:
		if sellerGain >= buyerMargin || saturatingSub(buyerMargin, sellerGain) <= threshold {
			maxTransfer := saturatingSub(buyerMargin, threshold)
			sellerMargin, err = checkedAdd(sellerMargin, maxTransfer)
			if err != nil {
				return nil, err
			}
			buyerMargin = threshold
			out.Transferred = maxTransfer
			out.MarginCalled = true
		} else {
			sellerMargin, err = checkedAdd(sellerMargin, sellerGain)
			if err != nil {
				return nil, err
			}
			buyerMargin, err = checkedSub(buyerMargin, sellerGain)
			if err != nil {
				return nil, err
			}
			out.Transferred = sellerGain
		}
	}

	rec.SellerMargin = sellerMargin
	rec.BuyerMargin = buyerMargin
	if out.MarginCalled {
		rec.Status = types.StatusMarginCalled
	}
	rec.LastSettlementDate = now.Unix()
	rec.LastSettlementRatio = currentRatio
	rec.UpdatedAt = now

	return out, nil
}

// attributeGain decides which side the price move favours. Exactly one side
// gains; a flat ratio moves nothing for either.
func attributeGain(kind uint8, currentRatio, referenceRatio, diff uint64) (buyerGain, sellerGain uint64) {
	if kind == types.KindCall {
		// Call: the buyer gains when the ratio rises.
		if currentRatio > referenceRatio {
			return diff, 0
		}
		if currentRatio < referenceRatio {
			return 0, diff
		}
		return 0, 0
	}
	// Put: the buyer gains when the ratio falls.
	if currentRatio < referenceRatio {
		return diff, 0
	}
	if currentRatio > referenceRatio {
		return 0, diff
	}
	return 0, 0
}

// marginThreshold is floor(initialMargin * 20 / 100), with the
// multiplication checked.
func marginThreshold(initialMargin uint64) (uint64, error) {
	hi, lo := bits.Mul64(initialMargin, types.MarginCallThresholdPct)
	if hi != 0 {
		return 0, types.ErrCalculationOverflow
	}
	return lo / 100, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, types.ErrCalculationOverflow
	}
	return sum, nil
}

// checkedSub guards the margin-debit path. Underflow is impossible by
// construction once the clamp has run, but a failed subtraction still
// surfaces as an insufficient-margin error rather than wrapping.
func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, types.ErrInsufficientMargin
	}
	return diff, nil
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
