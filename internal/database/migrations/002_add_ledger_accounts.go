package migrations

import (
	"github.com/ksred/optix-api/internal/custody"
	"gorm.io/gorm"
)

func AddLedgerAccounts(db *gorm.DB) error {
	if err := db.AutoMigrate(&custody.Account{}); err != nil {
		return err
	}

	return db.AutoMigrate(&custody.Transfer{})
}
