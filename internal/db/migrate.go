package db

import (
	"fmt"

	"github.com/grouperhq/grouper/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.ProjectMember{},
		&models.PlannedMember{},
		&models.TaskBundle{},
		&models.Task{},
		&models.Deliverable{},
		&models.GenerationAudit{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
