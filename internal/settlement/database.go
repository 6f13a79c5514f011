package settlement

import (
	"time"

	"github.com/ksred/optix-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func (d *Database) CreateSettlementRecord(tx *gorm.DB, record *types.SettlementRecord) error {
	return tx.Create(record).Error
}

func (d *Database) GetSettlementRecord(settlementID string) (*types.SettlementRecord, error) {
	var record types.SettlementRecord
	if err := d.db.Where("settlement_id = ?", settlementID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetContractsDueForSettlement returns owned contracts whose last settlement
// is at least the interval ago. Test contracts are excluded; the keeper only
// sweeps production records.
func (d *Database) GetContractsDueForSettlement(now time.Time) ([]types.OptionContract, error) {
	cutoff := now.Add(-types.SettlementInterval).Unix()
	var due []types.OptionContract
	if err := d.db.
		Where("status = ? AND is_test = ? AND last_settlement_date <= ? AND expiry_date > ?",
			types.StatusOwned, false, cutoff, now.Unix()).
		Find(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}

// GetPastExpiryContracts returns non-terminal contracts past their expiry.
func (d *Database) GetPastExpiryContracts(now time.Time) ([]types.OptionContract, error) {
	var past []types.OptionContract
	if err := d.db.
		Where("status IN ? AND expiry_date <= ?",
			[]string{types.StatusListed, types.StatusOwned}, now.Unix()).
		Find(&past).Error; err != nil {
		return nil, err
	}
	return past, nil
}
