package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AICallLog records one call to the external model provider for auditing.
type AICallLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	SubmissionID *uuid.UUID     `gorm:"type:uuid;index" json:"submission_id,omitempty"`
	Model        string         `gorm:"column:model;not null" json:"model"`
	Success      bool           `gorm:"column:success;not null" json:"success"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	LatencyMS    int64          `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	Usage        datatypes.JSON `gorm:"type:jsonb;column:usage" json:"usage,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_log" }
