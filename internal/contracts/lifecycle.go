package contracts

import (
	"time"

	"github.com/ksred/optix-api/internal/types"
)

// Lifecycle guards. Each guard validates one operation against the current
// record and clock and returns a domain error on the first violated
// precondition; callers run them before any mutation so a failure leaves the
// record untouched. Test contracts skip the expiry and interval checks but
// never the status or authorization ones.

func guardPurchase(rec *types.OptionContract, now time.Time) error {
	if rec.Status != types.StatusListed {
		return types.ErrNotListed
	}
	if !rec.IsTest && now.Unix() >= rec.ExpiryDate {
		return types.ErrContractExpired
	}
	return nil
}

func guardDelist(rec *types.OptionContract, caller string) error {
	if caller != rec.Seller {
		return types.ErrUnauthorized
	}
	if rec.Status != types.StatusListed {
		return types.ErrCannotDelist
	}
	return nil
}

func guardResell(rec *types.OptionContract, caller string, now time.Time, resellPrice uint64) error {
	if rec.Status != types.StatusOwned {
		return types.ErrNotOwned
	}
	if caller != rec.Owner {
		return types.ErrUnauthorized
	}
	if !rec.IsTest && now.Unix() >= rec.ExpiryDate {
		return types.ErrContractExpired
	}
	if resellPrice == 0 {
		return types.ErrZeroResellPrice
	}
	return nil
}

func guardExercise(rec *types.OptionContract, caller string, now time.Time) error {
	if rec.Status != types.StatusOwned {
		return types.ErrNotOwned
	}
	if caller != rec.Owner {
		return types.ErrUnauthorized
	}
	// European style: exercisable only at or after expiry.
	if !rec.IsTest && now.Unix() < rec.ExpiryDate {
		return types.ErrExerciseBeforeExpiry
	}
	return nil
}

func guardExpire(rec *types.OptionContract, now time.Time) error {
	if rec.Terminal() {
		return types.ErrContractExpired
	}
	if now.Unix() < rec.ExpiryDate {
		return types.ErrContractNotExpired
	}
	return nil
}

// Payoff computes the terminal settlement value of the contract at the given
// final ratio: max(finalRatio-strike, 0) for calls, max(strike-finalRatio, 0)
// for puts.
func Payoff(kind uint8, finalRatio, strike uint64) uint64 {
	if kind == types.KindCall {
		if finalRatio > strike {
			return finalRatio - strike
		}
		return 0
	}
	if strike > finalRatio {
		return strike - finalRatio
	}
	return 0
}
