package migrations

import (
	"github.com/ksred/optix-api/internal/types"
	"gorm.io/gorm"
)

func AddSettlementHistory(db *gorm.DB) error {
	return db.AutoMigrate(&types.SettlementRecord{})
}
