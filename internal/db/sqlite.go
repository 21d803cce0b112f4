package db

import (
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := database.AutoMigrate(
		&models.SessionRecord{},
		&models.DailyHistory{},
		&models.Setting{},
	); err != nil {
		return nil, err
	}

	return database, nil
}
