package database

import (
	"fmt"

	"github.com/ksred/optix-api/internal/custody"
	"github.com/ksred/optix-api/internal/database/migrations"
	"github.com/ksred/optix-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// path. Tests pass ":memory:".
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddSettlementHistory(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddLedgerAccounts(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	if err := db.AutoMigrate(&types.OptionContract{}); err != nil {
		return nil, err
	}

	return db, nil
}

// Tables exposed for test setups that migrate an in-memory database
// without going through NewDatabase.
func Tables() []interface{} {
	return []interface{}{
		&types.OptionContract{},
		&types.SettlementRecord{},
		&custody.Account{},
		&custody.Transfer{},
	}
}
