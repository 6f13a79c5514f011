package contracts

import (
	"fmt"

	"github.com/ksred/optix-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn as a single atomic unit; any error rolls back every
// write fn made.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func (d *Database) CreateContract(contract *types.OptionContract) error {
	return d.db.Create(contract).Error
}

func (d *Database) GetContract(contractID string) (*types.OptionContract, error) {
	var contract types.OptionContract
	if err := d.db.Where("contract_id = ?", contractID).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetContractTx loads a contract inside an open transaction.
func GetContractTx(tx *gorm.DB, contractID string) (*types.OptionContract, error) {
	var contract types.OptionContract
	if err := tx.Where("contract_id = ?", contractID).First(&contract).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch contract: %w", err)
	}
	return &contract, nil
}

// SaveContractTx persists a mutated record inside an open transaction.
func SaveContractTx(tx *gorm.DB, contract *types.OptionContract) error {
	return tx.Save(contract).Error
}

func (d *Database) GetContractsBySeller(seller string) ([]types.OptionContract, error) {
	var result []types.OptionContract
	if err := d.db.Where("seller = ?", seller).Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Database) GetSettlementHistory(contractID string) ([]types.SettlementRecord, error) {
	var records []types.SettlementRecord
	if err := d.db.Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
