package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type TopicMasteryRepo interface {
	// RecordAttempt upserts one (user, topic) row. All counter math happens in
	// SQL expressions so concurrent completions for the same user never lose
	// updates; the rolling average is an EMA with smoothing factor alpha.
	RecordAttempt(dbc dbctx.Context, userID uuid.UUID, subject, topic string, correct bool, score, alpha float64, now time.Time) error
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.TopicMastery, error)
	ListByUserSubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.TopicMastery, error)
}

type topicMasteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicMasteryRepo(db *gorm.DB, baseLog *logger.Logger) TopicMasteryRepo {
	return &topicMasteryRepo{db: db, log: baseLog.With("repo", "TopicMasteryRepo")}
}

func (r *topicMasteryRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *topicMasteryRepo) RecordAttempt(dbc dbctx.Context, userID uuid.UUID, subject, topic string, correct bool, score, alpha float64, now time.Time) error {
	if userID == uuid.Nil || topic == "" {
		return pkgerrors.ErrInvalidArgument
	}
	correctInc := int64(0)
	if correct {
		correctInc = 1
	}
	row := &types.TopicMastery{
		ID:              uuid.New(),
		UserID:          userID,
		Subject:         subject,
		Topic:           topic,
		TotalAttempts:   1,
		CorrectAttempts: correctInc,
		AverageScore:    score,
		LastActivity:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "topic"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_attempts":   gorm.Expr("topic_mastery.total_attempts + 1"),
				"correct_attempts": gorm.Expr("topic_mastery.correct_attempts + ?", correctInc),
				"average_score":    gorm.Expr("? * ? + ? * topic_mastery.average_score", alpha, score, 1-alpha),
				"last_activity":    now,
				"updated_at":       now,
			}),
		}).
		Create(row).Error
}

func (r *topicMasteryRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.TopicMastery, error) {
	out := []*types.TopicMastery{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicMasteryRepo) ListByUserSubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.TopicMastery, error) {
	out := []*types.TopicMastery{}
	if userID == uuid.Nil || subject == "" {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND subject = ?", userID, subject).
		Order("last_activity DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
