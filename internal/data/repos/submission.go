package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type SubmissionRepo interface {
	Create(dbc dbctx.Context, sub *types.Submission) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error)
	ListRecentCompleted(dbc dbctx.Context, userID uuid.UUID, subject string, limit int) ([]*types.Submission, error)
	// Transition performs the guarded state-machine update. It validates the
	// edge, then updates only rows still in `from`, so concurrent workers and
	// crash-retries cannot apply a transition twice or out of order.
	Transition(dbc dbctx.Context, id uuid.UUID, from, to types.SubmissionStatus, updates map[string]interface{}) (bool, error)
	// ListRunnable returns ids of submissions awaiting background analysis:
	// freshly scored rows, ai_processing rows whose worker went quiet before
	// staleCutoff (their lease has expired by then), and pending rows stranded
	// by a crash before their first transition.
	ListRunnable(dbc dbctx.Context, staleCutoff time.Time, limit int) ([]uuid.UUID, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *submissionRepo) Create(dbc dbctx.Context, sub *types.Submission) error {
	if sub == nil || sub.UserID == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(sub).Error
}

func (r *submissionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var sub types.Submission
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *submissionRepo) ListRecentCompleted(dbc dbctx.Context, userID uuid.UUID, subject string, limit int) ([]*types.Submission, error) {
	out := []*types.Submission{}
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND status = ?", userID, types.StatusCompleted)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	if err := q.Order("completed_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *submissionRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to types.SubmissionStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, pkgerrors.ErrInvalidArgument
	}
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *submissionRepo) ListRunnable(dbc dbctx.Context, staleCutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []uuid.UUID{}
	rows := []*types.Submission{}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Select("id").
		Where(
			"status = ? OR (status IN ? AND updated_at < ?)",
			types.StatusScoring,
			[]types.SubmissionStatus{types.StatusAIProcessing, types.StatusPending},
			staleCutoff,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out, nil
}
