package database

import (
	"fmt"

	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
)

// Models lists every persisted entity in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.Balance{},
		&models.SuspensionInfo{},
		&models.LedgerEntry{},
		&models.Dish{},
		&models.DishPost{},
		&models.DishRequest{},
		&models.Bid{},
		&models.Offer{},
		&models.Order{},
		&models.OrderFeedback{},
		&models.Rating{},
		&models.Complaint{},
		&models.RedFlag{},
		&models.RemoveSuspensionRequest{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to AutoMigrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
