package db

import (
	"fmt"

	"github.com/zulandar/signalbox/internal/models"
	"gorm.io/gorm"
)

// ChatModels returns the tables owned by signalbox.
func ChatModels() []interface{} {
	return []interface{}{
		&models.Message{},
	}
}

// AllModels returns the chat tables plus the ticket app's user table, for
// standalone and development databases.
func AllModels() []interface{} {
	return append(ChatModels(), &models.User{})
}

// AutoMigrate creates or updates the chat tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(ChatModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// AutoMigrateAll creates or updates every table, including users.
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
