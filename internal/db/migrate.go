package db

import (
	"proparena/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Challenge{},
		&models.Entry{},
		&models.FundedAccount{},
		&models.Vault{},
		&models.Counter{},
	)
}
