package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/models"
)

// SystemUsername is the account that owns the default rooms.
const SystemUsername = "system"

// DefaultRooms are created on first start-up when no room named "General" exists.
var DefaultRooms = []models.Room{
	{Name: "General", Description: "General campus chat", IsPublic: true},
	{Name: "Study Groups", Description: "Find study partners", IsPublic: true},
	{Name: "Campus Events", Description: "Campus events and activities", IsPublic: true},
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.MessageReaction{},
	)
}

// SeedData ensures the system user and default public rooms exist.
func SeedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var general models.Room
		err := tx.Where("name = ?", DefaultRooms[0].Name).First(&general).Error
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup default room: %w", err)
		}

		system := models.User{
			Username:    SystemUsername,
			Email:       "system@fadmann.local",
			DisplayName: "System",
			IsActive:    true,
		}
		if err := tx.Where(models.User{Username: system.Username}).Attrs(system).FirstOrCreate(&system).Error; err != nil {
			return fmt.Errorf("seed system user: %w", err)
		}

		for _, room := range DefaultRooms {
			room.CreatedBy = system.ID
			if err := tx.Create(&room).Error; err != nil {
				return fmt.Errorf("seed room %s: %w", room.Name, err)
			}
		}
		return nil
	})
}
