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

type WeaknessSignalRepo interface {
	// Reinforce bumps error_count atomically and resets last_error, creating
	// the (user, topic, type) row on first error.
	Reinforce(dbc dbctx.Context, userID uuid.UUID, subject, topic, weaknessType string, now time.Time) error
	ListByUserSubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.WeaknessSignal, error)
	// HardDeleteByIDs physically removes pruned signals.
	HardDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type weaknessSignalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWeaknessSignalRepo(db *gorm.DB, baseLog *logger.Logger) WeaknessSignalRepo {
	return &weaknessSignalRepo{db: db, log: baseLog.With("repo", "WeaknessSignalRepo")}
}

func (r *weaknessSignalRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *weaknessSignalRepo) Reinforce(dbc dbctx.Context, userID uuid.UUID, subject, topic, weaknessType string, now time.Time) error {
	if userID == uuid.Nil || topic == "" || weaknessType == "" {
		return pkgerrors.ErrInvalidArgument
	}
	row := &types.WeaknessSignal{
		ID:           uuid.New(),
		UserID:       userID,
		Subject:      subject,
		Topic:        topic,
		WeaknessType: weaknessType,
		ErrorCount:   1,
		LastError:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "topic"},
				{Name: "weakness_type"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"error_count": gorm.Expr("weakness_signal.error_count + 1"),
				"last_error":  now,
				"updated_at":  now,
			}),
		}).
		Create(row).Error
}

func (r *weaknessSignalRepo) ListByUserSubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.WeaknessSignal, error) {
	out := []*types.WeaknessSignal{}
	if userID == uuid.Nil || subject == "" {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND subject = ?", userID, subject).
		Order("error_count DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *weaknessSignalRepo) HardDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Unscoped().
		Where("id IN ?", ids).
		Delete(&types.WeaknessSignal{}).Error
}
