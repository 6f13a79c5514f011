package settlement

import (
	"testing"
	"time"

	"github.com/ksred/optix-api/internal/pricing"
	"github.com/ksred/optix-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ownedContract returns a test-mode contract whose settled ratios equal the
// asset price passed to Apply: with refPrice pinned to RatioScale the
// computed ratio is the asset price itself.
func ownedContract(kind uint8) *types.OptionContract {
	return &types.OptionContract{
		ContractID:    "OPT_test",
		Kind:          kind,
		Underlying:    "AAPL",
		Seller:        "seller-1",
		Owner:         "buyer-1",
		Status:        types.StatusOwned,
		Premium:       50,
		Strike:        1_000,
		InitialMargin: 1_000,
		SellerMargin:  1_000,
		BuyerMargin:   1_000,
		IsTest:        true,
	}
}

const refPrice = pricing.RatioScale

func TestApplyAttribution(t *testing.T) {
	now := time.Now()

	t.Run("CallBuyerGainsOnRise", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 1_300, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(1_300), out.CurrentRatio)
		assert.Equal(t, rec.Strike, out.ReferenceRatio)
		assert.Equal(t, uint64(300), out.BuyerGain)
		assert.Equal(t, uint64(0), out.SellerGain)
		assert.Equal(t, uint64(300), out.Transferred)
		assert.Equal(t, uint64(1_300), rec.BuyerMargin)
		assert.Equal(t, uint64(700), rec.SellerMargin)
		assert.Equal(t, types.StatusOwned, rec.Status)
	})

	t.Run("CallSellerGainsOnFall", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 700, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(300), out.SellerGain)
		assert.Equal(t, uint64(1_300), rec.SellerMargin)
		assert.Equal(t, uint64(700), rec.BuyerMargin)
	})

	t.Run("PutBuyerGainsOnFall", func(t *testing.T) {
		rec := ownedContract(types.KindPut)
		out, err := Apply(rec, now, 800, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(200), out.BuyerGain)
		assert.Equal(t, uint64(1_200), rec.BuyerMargin)
		assert.Equal(t, uint64(800), rec.SellerMargin)
	})

	t.Run("PutSellerGainsOnRise", func(t *testing.T) {
		rec := ownedContract(types.KindPut)
		out, err := Apply(rec, now, 1_200, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(200), out.SellerGain)
		assert.Equal(t, uint64(1_200), rec.SellerMargin)
		assert.Equal(t, uint64(800), rec.BuyerMargin)
	})

	t.Run("FlatRatioMovesNothing", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 1_000, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(0), out.Transferred)
		assert.Equal(t, uint64(1_000), rec.SellerMargin)
		assert.Equal(t, uint64(1_000), rec.BuyerMargin)
		assert.Equal(t, types.StatusOwned, rec.Status)
		assert.Equal(t, uint64(1_000), rec.LastSettlementRatio)
	})
}

func TestApplyReference(t *testing.T) {
	now := time.Now()

	t.Run("FirstSettlementUsesStrike", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.LastSettlementRatio = 0
		out, err := Apply(rec, now, 1_100, refPrice)
		require.NoError(t, err)
		assert.Equal(t, rec.Strike, out.ReferenceRatio)
	})

	t.Run("LaterSettlementsUseLastRatio", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.LastSettlementRatio = 1_100
		out, err := Apply(rec, now, 1_150, refPrice)
		require.NoError(t, err)

		assert.Equal(t, uint64(1_100), out.ReferenceRatio)
		assert.Equal(t, uint64(50), out.BuyerGain)
		assert.Equal(t, uint64(1_150), rec.LastSettlementRatio)
	})
}

func TestApplyMarginCall(t *testing.T) {
	now := time.Now()

	// InitialMargin 1000 puts the threshold at exactly 200.

	t.Run("LossReachingThresholdClamps", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 1_800, refPrice)
		require.NoError(t, err)

		assert.True(t, out.MarginCalled)
		assert.Equal(t, uint64(800), out.Transferred)
		assert.Equal(t, uint64(200), rec.SellerMargin)
		assert.Equal(t, uint64(1_800), rec.BuyerMargin)
		assert.Equal(t, types.StatusMarginCalled, rec.Status)
	})

	t.Run("LossJustAboveThresholdSurvives", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 1_799, refPrice)
		require.NoError(t, err)

		assert.False(t, out.MarginCalled)
		assert.Equal(t, uint64(799), out.Transferred)
		assert.Equal(t, uint64(201), rec.SellerMargin)
		assert.Equal(t, uint64(1_799), rec.BuyerMargin)
		assert.Equal(t, types.StatusOwned, rec.Status)
	})

	t.Run("GainExceedingMarginIsClamped", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 3_000, refPrice)
		require.NoError(t, err)

		// The loser is floored at the threshold, never below.
		assert.True(t, out.MarginCalled)
		assert.Equal(t, uint64(2_000), out.BuyerGain)
		assert.Equal(t, uint64(800), out.Transferred)
		assert.Equal(t, uint64(200), rec.SellerMargin)
		assert.Equal(t, uint64(1_800), rec.BuyerMargin)
	})

	t.Run("BuyerSideClampIsSymmetric", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		out, err := Apply(rec, now, 200, refPrice)
		require.NoError(t, err)

		assert.True(t, out.MarginCalled)
		assert.Equal(t, uint64(800), out.Transferred)
		assert.Equal(t, uint64(200), rec.BuyerMargin)
		assert.Equal(t, uint64(1_800), rec.SellerMargin)
		assert.Equal(t, types.StatusMarginCalled, rec.Status)
	})

	t.Run("TotalMarginConserved", func(t *testing.T) {
		for _, assetPrice := range []uint64{200, 700, 1_000, 1_300, 1_799, 1_800, 3_000} {
			rec := ownedContract(types.KindCall)
			total := rec.SellerMargin + rec.BuyerMargin

			_, err := Apply(rec, now, assetPrice, refPrice)
			require.NoError(t, err)
			assert.Equal(t, total, rec.SellerMargin+rec.BuyerMargin, "asset price %d", assetPrice)
		}
	})
}

func TestApplyGuards(t *testing.T) {
	now := time.Now()

	t.Run("RejectsNonOwnedStatus", func(t *testing.T) {
		for _, status := range []string{
			types.StatusListed,
			types.StatusExpired,
			types.StatusDelisted,
			types.StatusMarginCalled,
		} {
			rec := ownedContract(types.KindCall)
			rec.Status = status
			_, err := Apply(rec, now, 1_100, refPrice)
			assert.ErrorIs(t, err, types.ErrNotOwned, status)
		}
	})

	t.Run("RejectsZeroReferencePrice", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		_, err := Apply(rec, now, 1_100, 0)
		assert.ErrorIs(t, err, types.ErrInvalidPrice)
	})

	t.Run("ProductionContractTooSoon", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.IsTest = false
		rec.ExpiryDate = now.Add(24 * time.Hour).Unix()
		rec.LastSettlementDate = now.Add(-time.Hour).Unix()
		_, err := Apply(rec, now, 1_100, refPrice)
		assert.ErrorIs(t, err, types.ErrSettlementTooSoon)
	})

	t.Run("ProductionContractAfterInterval", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.IsTest = false
		rec.ExpiryDate = now.Add(24 * time.Hour).Unix()
		rec.LastSettlementDate = now.Add(-25 * time.Hour).Unix()
		_, err := Apply(rec, now, 1_100, refPrice)
		assert.NoError(t, err)
	})

	t.Run("ProductionContractPastExpiry", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.IsTest = false
		rec.ExpiryDate = now.Add(-time.Hour).Unix()
		_, err := Apply(rec, now, 1_100, refPrice)
		assert.ErrorIs(t, err, types.ErrContractExpired)
	})

	t.Run("ErrorLeavesRecordUntouched", func(t *testing.T) {
		rec := ownedContract(types.KindCall)
		rec.IsTest = false
		rec.ExpiryDate = now.Add(24 * time.Hour).Unix()
		rec.LastSettlementDate = now.Unix()
		before := *rec

		_, err := Apply(rec, now, 1_100, refPrice)
		require.Error(t, err)
		assert.Equal(t, before, *rec)
	})
}

func TestMarginThreshold(t *testing.T) {
	cases := []struct {
		initialMargin uint64
		want          uint64
	}{
		{1_000, 200},
		{999, 199}, // floors
		{5, 1},
		{4, 0},
	}
	for _, tc := range cases {
		got, err := marginThreshold(tc.initialMargin)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "initial margin %d", tc.initialMargin)
	}
}
