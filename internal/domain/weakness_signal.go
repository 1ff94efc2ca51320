package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeaknessSignal tracks one (user, topic, weakness type) error stream. Its
// severity decays at read time; the row stores only the raw count and the
// last reinforcement timestamp.
type WeaknessSignal struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_weakness_user_topic_type,unique" json:"user_id"`
	Subject      string         `gorm:"column:subject;not null;index" json:"subject"`
	Topic        string         `gorm:"column:topic;not null;index:idx_weakness_user_topic_type,unique" json:"topic"`
	WeaknessType string         `gorm:"column:weakness_type;not null;index:idx_weakness_user_topic_type,unique" json:"weakness_type"`
	ErrorCount   int64          `gorm:"column:error_count;not null;default:0" json:"error_count"`
	LastError    time.Time      `gorm:"column:last_error;not null;default:now()" json:"last_error"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (WeaknessSignal) TableName() string { return "weakness_signal" }
