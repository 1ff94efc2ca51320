package ledger

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/clock"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type Config struct {
	// SmoothingAlpha weights the newest attempt in the rolling average; recent
	// performance dominates a plain mean.
	SmoothingAlpha float64
	// HalfLifeDays controls weakness decay: severity halves every half-life.
	HalfLifeDays float64
	// Epsilon is the severity below which a signal reads as absent and may be
	// physically pruned.
	Epsilon float64
}

func DefaultConfig() Config {
	return Config{
		SmoothingAlpha: 0.3,
		HalfLifeDays:   14,
		Epsilon:        0.1,
	}
}

// TopicSeverity is one topic's aggregate decayed weakness weight.
type TopicSeverity struct {
	Topic    string  `json:"topic"`
	Severity float64 `json:"severity"`
}

// SignalView is one decayed signal as readers see it.
type SignalView struct {
	Topic        string    `json:"topic"`
	WeaknessType string    `json:"weakness_type"`
	ErrorCount   int64     `json:"error_count"`
	Severity     float64   `json:"severity"`
	LastError    time.Time `json:"last_error"`
}

// Service maintains TopicMastery and WeaknessSignal rows. Writes are atomic
// at the storage layer; decay is derived at read time so it is never stale.
type Service interface {
	RecordOutcome(dbc dbctx.Context, userID uuid.UUID, subject, topic string, correct bool, errorType string) error
	ListMastery(dbc dbctx.Context, userID uuid.UUID) ([]*types.TopicMastery, error)
	ListMasteryBySubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.TopicMastery, error)
	// WeaknessBySeverity returns topics ranked by decayed severity, pruning
	// negligible signals on the way.
	WeaknessBySeverity(dbc dbctx.Context, userID uuid.UUID, subject string) ([]TopicSeverity, []SignalView, error)
}

type service struct {
	log       *logger.Logger
	cfg       Config
	clk       clock.Clock
	mastery   repos.TopicMasteryRepo
	weakness  repos.WeaknessSignalRepo
}

func NewService(baseLog *logger.Logger, cfg Config, clk clock.Clock, mastery repos.TopicMasteryRepo, weakness repos.WeaknessSignalRepo) Service {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.SmoothingAlpha <= 0 || cfg.SmoothingAlpha > 1 {
		cfg.SmoothingAlpha = DefaultConfig().SmoothingAlpha
	}
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = DefaultConfig().HalfLifeDays
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	return &service{
		log:      baseLog.With("service", "SkillLedger"),
		cfg:      cfg,
		clk:      clk,
		mastery:  mastery,
		weakness: weakness,
	}
}

func (s *service) RecordOutcome(dbc dbctx.Context, userID uuid.UUID, subject, topic string, correct bool, errorType string) error {
	if userID == uuid.Nil || topic == "" {
		return pkgerrors.ErrInvalidArgument
	}
	now := s.clk.Now()
	score := 0.0
	if correct {
		score = 1.0
	}
	if err := s.mastery.RecordAttempt(dbc, userID, subject, topic, correct, score, s.cfg.SmoothingAlpha, now); err != nil {
		return err
	}
	if !correct && errorType != "" {
		if err := s.weakness.Reinforce(dbc, userID, subject, topic, errorType, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ListMastery(dbc dbctx.Context, userID uuid.UUID) ([]*types.TopicMastery, error) {
	return s.mastery.ListByUser(dbc, userID)
}

func (s *service) ListMasteryBySubject(dbc dbctx.Context, userID uuid.UUID, subject string) ([]*types.TopicMastery, error) {
	return s.mastery.ListByUserSubject(dbc, userID, subject)
}

func (s *service) WeaknessBySeverity(dbc dbctx.Context, userID uuid.UUID, subject string) ([]TopicSeverity, []SignalView, error) {
	rows, err := s.weakness.ListByUserSubject(dbc, userID, subject)
	if err != nil {
		return nil, nil, err
	}
	now := s.clk.Now()

	byTopic := map[string]float64{}
	views := make([]SignalView, 0, len(rows))
	prune := []uuid.UUID{}
	for _, row := range rows {
		severity := EffectiveSeverity(row.ErrorCount, row.LastError, now, s.cfg.HalfLifeDays)
		if severity < s.cfg.Epsilon {
			prune = append(prune, row.ID)
			continue
		}
		byTopic[row.Topic] += severity
		views = append(views, SignalView{
			Topic:        row.Topic,
			WeaknessType: row.WeaknessType,
			ErrorCount:   row.ErrorCount,
			Severity:     severity,
			LastError:    row.LastError,
		})
	}

	if len(prune) > 0 {
		if err := s.weakness.HardDeleteByIDs(dbc, prune); err != nil {
			s.log.Warn("weakness prune failed", "count", len(prune), "error", err)
		}
	}

	ranked := make([]TopicSeverity, 0, len(byTopic))
	for topic, severity := range byTopic {
		ranked = append(ranked, TopicSeverity{Topic: topic, Severity: severity})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Severity != ranked[j].Severity {
			return ranked[i].Severity > ranked[j].Severity
		}
		return ranked[i].Topic < ranked[j].Topic
	})
	sort.Slice(views, func(i, j int) bool { return views[i].Severity > views[j].Severity })
	return ranked, views, nil
}

// DecayFactor halves per halfLifeDays elapsed since the last reinforcement.
// At zero elapsed time the factor is exactly 1.
func DecayFactor(lastError, now time.Time, halfLifeDays float64) float64 {
	days := now.Sub(lastError).Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * days / halfLifeDays)
}

func EffectiveSeverity(errorCount int64, lastError, now time.Time, halfLifeDays float64) float64 {
	return float64(errorCount) * DecayFactor(lastError, now, halfLifeDays)
}
