package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Answer spec kinds understood by the fast scorer.
const (
	AnswerKindChoice  = "choice"
	AnswerKindText    = "text"
	AnswerKindNumeric = "numeric"
)

// Question is read-only reference data supplied by the content collaborator.
type Question struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Subject       string         `gorm:"column:subject;not null;index" json:"subject"`
	Topic         string         `gorm:"column:topic;not null;index" json:"topic"`
	Difficulty    int            `gorm:"column:difficulty;not null;default:1" json:"difficulty"`
	Prompt        string         `gorm:"column:prompt;not null" json:"prompt"`
	AnswerKind    string         `gorm:"column:answer_kind;not null" json:"answer_kind"`
	CorrectAnswer string         `gorm:"column:correct_answer;not null" json:"correct_answer"`
	Tolerance     float64        `gorm:"column:tolerance;not null;default:0" json:"tolerance"`
	ErrorTag      string         `gorm:"column:error_tag" json:"error_tag,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Question) TableName() string { return "question" }
