package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// TopicStat summarizes the question pool for one topic of a subject.
type TopicStat struct {
	Topic         string `json:"topic"`
	QuestionCount int64  `json:"question_count"`
	MaxDifficulty int    `json:"max_difficulty"`
}

type QuestionRepo interface {
	Create(dbc dbctx.Context, questions []*types.Question) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Question, error)
	ListBySubject(dbc dbctx.Context, subject string) ([]*types.Question, error)
	ListTopicStats(dbc dbctx.Context, subject string) ([]TopicStat, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *questionRepo) Create(dbc dbctx.Context, questions []*types.Question) error {
	if len(questions) == 0 {
		return nil
	}
	for _, q := range questions {
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(&questions).Error
}

func (r *questionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Question, error) {
	out := []*types.Question{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) ListBySubject(dbc dbctx.Context, subject string) ([]*types.Question, error) {
	out := []*types.Question{}
	if subject == "" {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("subject = ?", subject).
		Order("topic ASC, difficulty ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRepo) ListTopicStats(dbc dbctx.Context, subject string) ([]TopicStat, error) {
	out := []TopicStat{}
	if subject == "" {
		return out, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Question{}).
		Select("topic, COUNT(*) AS question_count, MAX(difficulty) AS max_difficulty").
		Where("subject = ?", subject).
		Group("topic").
		Order("topic ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
