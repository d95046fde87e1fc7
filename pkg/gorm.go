package pkg

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/deloaiprivatelimited/exam-engine/internal/config"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Test{},
		&models.Section{},
		&models.SectionQuestion{},
		&models.QuestionMCQ{},
		&models.QuestionRearrange{},
		&models.QuestionCoding{},
		&models.TestCaseGroup{},
		&models.TestCase{},
		&models.Attempt{},
		&models.Submission{},
		&models.Student{},
	)
}
