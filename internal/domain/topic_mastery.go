package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MasteryLevel string

const (
	MasteryNovice     MasteryLevel = "novice"
	MasteryDeveloping MasteryLevel = "developing"
	MasteryProficient MasteryLevel = "proficient"
	MasteryMastered   MasteryLevel = "mastered"
)

type TopicMastery struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_mastery_user_topic,unique" json:"user_id"`
	Subject         string         `gorm:"column:subject;not null;index" json:"subject"`
	Topic           string         `gorm:"column:topic;not null;index:idx_mastery_user_topic,unique" json:"topic"`
	TotalAttempts   int64          `gorm:"column:total_attempts;not null;default:0" json:"total_attempts"`
	CorrectAttempts int64          `gorm:"column:correct_attempts;not null;default:0" json:"correct_attempts"`
	AverageScore    float64        `gorm:"column:average_score;not null;default:0" json:"average_score"`
	LastActivity    time.Time      `gorm:"column:last_activity;not null;default:now()" json:"last_activity"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TopicMastery) TableName() string { return "topic_mastery" }

// Level derives the mastery tier from rolling accuracy and volume. It is a
// pure function of the row, never stored.
func (tm *TopicMastery) Level() MasteryLevel {
	if tm == nil || tm.TotalAttempts < 3 {
		return MasteryNovice
	}
	switch {
	case tm.AverageScore >= 0.9 && tm.TotalAttempts >= 10:
		return MasteryMastered
	case tm.AverageScore >= 0.7:
		return MasteryProficient
	case tm.AverageScore >= 0.4:
		return MasteryDeveloping
	default:
		return MasteryNovice
	}
}
