package db

import (
	"propdesk/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Trade{},
		&models.Strategy{},
		&models.SystemSetting{},
		&models.AccountSnapshot{},
	)
}
