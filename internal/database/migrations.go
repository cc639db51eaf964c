package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/classable/classable/internal/models"
	"github.com/classable/classable/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Profile{},
		&models.Class{},
		&models.ClassMembership{},
		&models.Invite{},
		&models.AuditLog{},
		&models.BillingCustomer{},
		&models.OnboardingProfile{},
	)
}

// SeedData provisions the initial superadmin identity when none exists.
// Subsequent accounts are created exclusively through invite redemption or
// superadmin action, so a fresh install needs exactly one bootstrap identity.
func SeedData(db *gorm.DB, adminEmail, adminPassword string) error {
	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	if adminEmail == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.Profile{}).
		Where("role = ?", models.RoleSuperadmin).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count superadmins: %w", err)
	}
	if count > 0 {
		return nil
	}

	if strings.TrimSpace(adminPassword) == "" {
		return errors.New("bootstrap admin password is required when seeding a superadmin")
	}

	hashed, err := crypto.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		account := models.Account{
			Email:    adminEmail,
			Password: hashed,
			IsActive: true,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("create bootstrap account: %w", err)
		}

		profile := models.Profile{
			ID:              account.ID,
			Role:            models.RoleSuperadmin,
			PasswordChanged: true,
			IsActive:        true,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("create bootstrap profile: %w", err)
		}
		return nil
	})
}
