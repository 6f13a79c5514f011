package custody

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/optix-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Account is a ledger balance. Client accounts hold party funds; each
// contract additionally gets a custody account holding posted margin.
type Account struct {
	gorm.Model `json:"-"`
	AccountID  string    `gorm:"uniqueIndex" json:"account_id"`
	Balance    uint64    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transfer is the audit row for a single value movement between accounts.
type Transfer struct {
	gorm.Model  `json:"-"`
	TransferID  string    `gorm:"uniqueIndex" json:"transfer_id"`
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Amount      uint64    `json:"amount"`
	Reason      string    `json:"reason"`
	ContractID  string    `gorm:"index" json:"contract_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transfer reasons
const (
	ReasonDeposit       = "DEPOSIT"
	ReasonPremium       = "PREMIUM"
	ReasonMarginDeposit = "MARGIN_DEPOSIT"
	ReasonMarginReturn  = "MARGIN_RETURN"
	ReasonResalePrice   = "RESALE_PRICE"
)

// ClientAccountID returns the ledger account ID for a client identity.
func ClientAccountID(clientID string) string {
	return "ACC_" + clientID
}

// ContractAccountID returns the custody account ID for a contract.
func ContractAccountID(contractID string) string {
	return "CUST_" + contractID
}

// Ledger moves value between accounts. Every movement happens inside the
// caller's transaction so a failed leg rolls the whole operation back.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Deposit credits a client account, creating it if needed. This is the
// stand-in entry point for the external value-transfer rail.
func (l *Ledger) Deposit(clientID string, amount uint64) (*Account, error) {
	if amount == 0 {
		return nil, &types.DomainError{Code: types.CodeValidationFailed, Message: "deposit amount must be greater than zero"}
	}

	accountID := ClientAccountID(clientID)
	var account Account
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).First(&account).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			account = Account{AccountID: accountID}
		}

		balance, carry := bits.Add64(account.Balance, amount, 0)
		if carry != 0 {
			return types.ErrCalculationOverflow
		}
		account.Balance = balance
		account.UpdatedAt = time.Now()

		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		return tx.Create(&Transfer{
			TransferID: "TRF_" + uuid.New().String(),
			ToAccount:  accountID,
			Amount:     amount,
			Reason:     ReasonDeposit,
			CreatedAt:  time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("account_id", accountID).
		Uint64("amount", amount).
		Uint64("balance", account.Balance).
		Msg("deposit credited")

	return &account, nil
}

// BalanceOf returns the balance of a client account. A never-funded account
// reads as zero.
func (l *Ledger) BalanceOf(clientID string) (uint64, error) {
	var account Account
	err := l.db.Where("account_id = ?", ClientAccountID(clientID)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Move debits from and credits to within tx, writing the audit row. The
// destination account is created on first use; the source must exist and
// cover the amount or the whole transaction aborts. A transfer from an
// account to itself conserves value: it is validated and audited but moves
// nothing.
func (l *Ledger) Move(tx *gorm.DB, from, to string, amount uint64, reason, contractID string) error {
	if amount == 0 {
		return &types.DomainError{Code: types.CodeValidationFailed, Message: "transfer amount must be greater than zero"}
	}

	var src Account
	if err := tx.Where("account_id = ?", from).First(&src).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrInsufficientFunds
		}
		return fmt.Errorf("failed to load source account %s: %w", from, err)
	}
	if src.Balance < amount {
		return types.ErrInsufficientFunds
	}

	if from != to {
		var dst Account
		if err := tx.Where("account_id = ?", to).First(&dst).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load destination account %s: %w", to, err)
			}
			dst = Account{AccountID: to}
		}

		balance, carry := bits.Add64(dst.Balance, amount, 0)
		if carry != 0 {
			return types.ErrCalculationOverflow
		}

		src.Balance -= amount
		src.UpdatedAt = time.Now()
		dst.Balance = balance
		dst.UpdatedAt = time.Now()

		if err := tx.Save(&src).Error; err != nil {
			return err
		}
		if err := tx.Save(&dst).Error; err != nil {
			return err
		}
	}

	log.Debug().
		Str("from", from).
		Str("to", to).
		Uint64("amount", amount).
		Str("reason", reason).
		Str("contract_id", contractID).
		Msg("ledger transfer applied")

	return tx.Create(&Transfer{
		TransferID:  "TRF_" + uuid.New().String(),
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Reason:      reason,
		ContractID:  contractID,
		CreatedAt:   time.Now(),
	}).Error
}

// ContractTransfers returns the audit trail for a contract, newest first.
func (l *Ledger) ContractTransfers(contractID string) ([]Transfer, error) {
	var transfers []Transfer
	if err := l.db.Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}
