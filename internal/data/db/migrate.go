package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/skillforge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Reference data
		&types.Question{},

		// Pipeline
		&types.Submission{},
		&types.AICallLog{},

		// Skill ledger
		&types.TopicMastery{},
		&types.WeaknessSignal{},
	)
}
