package custody

import (
	"math"
	"testing"

	"github.com/ksred/optix-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Account{}, &Transfer{}))
	return NewLedger(db), db
}

func TestDeposit(t *testing.T) {
	ledger, _ := setupLedger(t)

	t.Run("CreatesAccount", func(t *testing.T) {
		account, err := ledger.Deposit("client-1", 1_000)
		require.NoError(t, err)
		assert.Equal(t, ClientAccountID("client-1"), account.AccountID)
		assert.Equal(t, uint64(1_000), account.Balance)
	})

	t.Run("AccumulatesBalance", func(t *testing.T) {
		account, err := ledger.Deposit("client-1", 500)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_500), account.Balance)
	})

	t.Run("RejectsZeroAmount", func(t *testing.T) {
		_, err := ledger.Deposit("client-1", 0)
		assert.Error(t, err)
	})

	t.Run("RejectsOverflow", func(t *testing.T) {
		_, err := ledger.Deposit("client-2", math.MaxUint64)
		require.NoError(t, err)
		_, err = ledger.Deposit("client-2", 1)
		assert.ErrorIs(t, err, types.ErrCalculationOverflow)
	})

	t.Run("WritesAuditRow", func(t *testing.T) {
		ledger2, db := setupLedger(t)
		_, err := ledger2.Deposit("client-3", 777)
		require.NoError(t, err)

		var transfers []Transfer
		require.NoError(t, db.Find(&transfers).Error)
		require.Len(t, transfers, 1)
		assert.Equal(t, ReasonDeposit, transfers[0].Reason)
		assert.Equal(t, uint64(777), transfers[0].Amount)
		assert.Equal(t, ClientAccountID("client-3"), transfers[0].ToAccount)
	})
}

func TestBalanceOf(t *testing.T) {
	ledger, _ := setupLedger(t)

	t.Run("UnfundedReadsZero", func(t *testing.T) {
		balance, err := ledger.BalanceOf("nobody")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), balance)
	})

	t.Run("AfterDeposit", func(t *testing.T) {
		_, err := ledger.Deposit("client-1", 2_500)
		require.NoError(t, err)

		balance, err := ledger.BalanceOf("client-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(2_500), balance)
	})
}

func TestMove(t *testing.T) {
	ledger, db := setupLedger(t)

	_, err := ledger.Deposit("alice", 1_000)
	require.NoError(t, err)

	from := ClientAccountID("alice")
	to := ContractAccountID("OPT_abc")

	t.Run("DebitsAndCredits", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, from, to, 400, ReasonMarginDeposit, "OPT_abc")
		})
		require.NoError(t, err)

		balance, err := ledger.BalanceOf("alice")
		require.NoError(t, err)
		assert.Equal(t, uint64(600), balance)

		var custodyAcc Account
		require.NoError(t, db.Where("account_id = ?", to).First(&custodyAcc).Error)
		assert.Equal(t, uint64(400), custodyAcc.Balance)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, from, to, 10_000, ReasonMarginDeposit, "OPT_abc")
		})
		assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	})

	t.Run("MissingSource", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, ClientAccountID("ghost"), to, 1, ReasonPremium, "OPT_abc")
		})
		assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	})

	t.Run("ZeroAmountRejected", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, from, to, 0, ReasonPremium, "OPT_abc")
		})
		assert.Error(t, err)
	})

	t.Run("SelfTransferConservesBalance", func(t *testing.T) {
		before, err := ledger.BalanceOf("alice")
		require.NoError(t, err)

		err = db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, from, from, 100, ReasonPremium, "OPT_abc")
		})
		require.NoError(t, err)

		after, err := ledger.BalanceOf("alice")
		require.NoError(t, err)
		assert.Equal(t, before, after)

		// The movement is still audited.
		var transfer Transfer
		require.NoError(t, db.Where("from_account = ? AND to_account = ?", from, from).
			First(&transfer).Error)
		assert.Equal(t, uint64(100), transfer.Amount)
	})

	t.Run("SelfTransferStillRequiresFunds", func(t *testing.T) {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Move(tx, from, from, 1_000_000, ReasonPremium, "OPT_abc")
		})
		assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	})

	t.Run("FailedLegRollsBack", func(t *testing.T) {
		before, err := ledger.BalanceOf("alice")
		require.NoError(t, err)

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := ledger.Move(tx, from, to, 100, ReasonPremium, "OPT_abc"); err != nil {
				return err
			}
			// Second leg overdraws, so the first must unwind too.
			return ledger.Move(tx, from, to, 10_000, ReasonMarginDeposit, "OPT_abc")
		})
		assert.ErrorIs(t, err, types.ErrInsufficientFunds)

		after, err := ledger.BalanceOf("alice")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestContractTransfers(t *testing.T) {
	ledger, db := setupLedger(t)

	_, err := ledger.Deposit("alice", 1_000)
	require.NoError(t, err)

	from := ClientAccountID("alice")
	to := ContractAccountID("OPT_xyz")
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ledger.Move(tx, from, to, 100, ReasonPremium, "OPT_xyz"); err != nil {
			return err
		}
		return ledger.Move(tx, from, to, 200, ReasonMarginDeposit, "OPT_xyz")
	})
	require.NoError(t, err)

	transfers, err := ledger.ContractTransfers("OPT_xyz")
	require.NoError(t, err)
	assert.Len(t, transfers, 2)

	other, err := ledger.ContractTransfers("OPT_other")
	require.NoError(t, err)
	assert.Empty(t, other)
}
