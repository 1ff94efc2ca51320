package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/skillforge-backend/internal/domain"
)

func SeedQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, subject, topic string, difficulty int) *types.Question {
	tb.Helper()
	q := &types.Question{
		ID:            uuid.New(),
		Subject:       subject,
		Topic:         topic,
		Difficulty:    difficulty,
		Prompt:        "prompt",
		AnswerKind:    types.AnswerKindText,
		CorrectAnswer: "answer",
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed question: %v", err)
	}
	return q
}

func SeedSubmission(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, subject string, status types.SubmissionStatus) *types.Submission {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Submission{
		ID:         uuid.New(),
		UserID:     userID,
		Subject:    subject,
		Answers:    datatypes.JSON([]byte("[]")),
		Status:     status,
		QuickScore: 0.5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status.Terminal() {
		s.CompletedAt = &now
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed submission: %v", err)
	}
	return s
}

func PtrTime(v time.Time) *time.Time { return &v }
