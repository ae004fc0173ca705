package database

import (
	"fmt"

	"canteen/internal/config"
	"canteen/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver (lib/pq)
	_ "github.com/mattn/go-sqlite3"              // SQLite driver
)

// Open connects to the configured database and verifies the connection
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	driver := cfg.Driver
	if driver == "sqlite" {
		driver = "sqlite3"
	}

	db, err := gorm.Open(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.DB().Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}

	if driver == "sqlite3" {
		// single writer; transactions serialize on the one connection
		db.DB().SetMaxOpenConns(1)
	}
	db.LogMode(false)

	return db, nil
}

// Migrate creates or updates the tables the service needs
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.MenuItem{}, &models.Order{}).Error; err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
