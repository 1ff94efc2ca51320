package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Submission struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject     string           `gorm:"column:subject;not null;index" json:"subject"`
	Answers     datatypes.JSON   `gorm:"column:answers;type:jsonb;not null" json:"answers"`
	Status      SubmissionStatus `gorm:"column:status;not null;index" json:"status"`
	QuickScore  float64          `gorm:"column:quick_score;not null;default:0" json:"quick_score"`
	FinalResult datatypes.JSON   `gorm:"column:final_result;type:jsonb" json:"final_result,omitempty"`
	RetryCount  int              `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	LastError   string           `gorm:"column:last_error" json:"last_error,omitempty"`
	CompletedAt *time.Time       `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `gorm:"index" json:"deleted_at,omitempty"`
}

func (Submission) TableName() string { return "submission" }

// SubmittedAnswer is one (question, answer) pair inside Submission.Answers.
type SubmittedAnswer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
}

// QuestionResult is the per-question verdict inside the final result payload.
type QuestionResult struct {
	QuestionID uuid.UUID `json:"question_id"`
	Topic      string    `json:"topic"`
	Correct    bool      `json:"correct"`
	ErrorTag   string    `json:"error_tag,omitempty"`
}

// FinalResult is the structured payload written together with the completed
// (or failed) transition. QuickScore is always carried so a later failure
// never erases the synchronous result.
type FinalResult struct {
	QuickScore      float64          `json:"quick_score"`
	PerQuestion     []QuestionResult `json:"per_question,omitempty"`
	Feedback        string           `json:"feedback,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	Failed          bool             `json:"failed,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`
}
