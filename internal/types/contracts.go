package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Option kinds
const (
	KindCall uint8 = 0
	KindPut  uint8 = 1
)

// Contract lifecycle statuses
const (
	StatusListed       = "LISTED"
	StatusOwned        = "OWNED"
	StatusExpired      = "EXPIRED"
	StatusDelisted     = "DELISTED"
	StatusMarginCalled = "MARGIN_CALLED"
)

// Contract terms. These are named here rather than inlined so the tests can
// reference the same values the engine enforces.
const (
	ContractDuration       = 30 * 24 * time.Hour // listing to expiry
	SettlementInterval     = 24 * time.Hour      // minimum gap between daily settlements
	MarginCallThresholdPct = 20                  // percent of initial margin
	MaxUnderlyingLength    = 32
)

// OptionContract is the persistent record for a single margined option.
// Premium, strike and margin amounts are unsigned integers in native units;
// strike and settlement ratios are asset/reference ratios scaled by 1e9.
type OptionContract struct {
	gorm.Model          `json:"-"`
	ContractID          string    `gorm:"uniqueIndex" json:"contract_id"`
	Kind                uint8     `json:"kind"` // 0: Call, 1: Put
	Underlying          string    `json:"underlying"`
	Seller              string    `json:"seller"`
	Owner               string    `json:"owner"` // empty until purchased
	InitiationDate      int64     `json:"initiation_date"`
	ExpiryDate          int64     `json:"expiry_date"`
	Status              string    `json:"status"`
	Premium             uint64    `json:"premium"`
	Strike              uint64    `json:"strike"`
	InitialMargin       uint64    `json:"initial_margin"`
	SellerMargin        uint64    `json:"seller_margin"`
	BuyerMargin         uint64    `json:"buyer_margin"`
	LastSettlementDate  int64     `json:"last_settlement_date"`
	LastSettlementRatio uint64    `json:"last_settlement_ratio"`
	IsTest              bool      `json:"is_test"` // test contracts skip timing checks
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Terminal reports whether the contract has reached a state no operation
// may leave.
func (c *OptionContract) Terminal() bool {
	switch c.Status {
	case StatusExpired, StatusDelisted, StatusMarginCalled:
		return true
	}
	return false
}

// DeriveContractID produces the deterministic contract identifier for a
// (seller, underlying) pair. A seller therefore lists at most one live
// contract per symbol; relisting the same pair collides on the unique index.
func DeriveContractID(seller, underlying string) string {
	sum := sha256.Sum256([]byte(seller + ":" + underlying))
	return "OPT_" + hex.EncodeToString(sum[:12])
}

// IdentityDigest maps a client identity to the fixed 32-byte key used in the
// binary record layout.
func IdentityDigest(clientID string) [32]byte {
	if clientID == "" {
		return [32]byte{}
	}
	return sha256.Sum256([]byte(clientID))
}

// Settlement triggers recorded on history rows
const (
	TriggerDaily      = "DAILY"
	TriggerMarginCall = "MARGIN_CALL"
	TriggerExercise   = "EXERCISE"
)

// SettlementRecord is the audit row written for every settlement or exercise
// event on a contract.
type SettlementRecord struct {
	gorm.Model     `json:"-"`
	SettlementID   string    `gorm:"uniqueIndex" json:"settlement_id"`
	ContractID     string    `gorm:"index" json:"contract_id"`
	Trigger        string    `json:"trigger"` // DAILY, MARGIN_CALL, EXERCISE
	CurrentRatio   uint64    `json:"current_ratio"`
	ReferenceRatio uint64    `json:"reference_ratio"`
	BuyerGain      uint64    `json:"buyer_gain"`
	SellerGain     uint64    `json:"seller_gain"`
	Transferred    uint64    `json:"transferred"`
	SellerMargin   uint64    `json:"seller_margin"`
	BuyerMargin    uint64    `json:"buyer_margin"`
	Payoff         uint64    `json:"payoff"` // exercise events only
	Snapshot       []byte    `json:"-"`      // binary record snapshot after the event
	CreatedAt      time.Time `json:"created_at"`
}
