package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/skillforge-backend/internal/cache"
	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/notify"
	"github.com/yungbote/skillforge-backend/internal/observability"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
	"github.com/yungbote/skillforge-backend/internal/scorer"
)

const maxAnswersPerSubmission = 100

// Ack is the synchronous reply to a submission: accepted, scored fast, queued
// for the expensive analysis.
type Ack struct {
	ID         uuid.UUID              `json:"id"`
	Status     types.SubmissionStatus `json:"status"`
	QuickScore float64                `json:"quick_score"`
}

type StatusView struct {
	ID         uuid.UUID              `json:"id"`
	Status     types.SubmissionStatus `json:"status"`
	RetryCount int                    `json:"retry_count"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// ResultView is the read model for results. Result is nil while analysis is
// still running; QuickScore is always populated.
type ResultView struct {
	ID         uuid.UUID              `json:"id"`
	Status     types.SubmissionStatus `json:"status"`
	QuickScore float64                `json:"quick_score"`
	Result     *types.FinalResult     `json:"result,omitempty"`
}

type Service interface {
	Submit(ctx context.Context, userID uuid.UUID, subject string, answers []types.SubmittedAnswer) (Ack, error)
	GetStatus(ctx context.Context, userID, submissionID uuid.UUID) (StatusView, error)
	GetResult(ctx context.Context, userID, submissionID uuid.UUID) (ResultView, error)
}

type service struct {
	log       *logger.Logger
	subs      repos.SubmissionRepo
	questions repos.QuestionRepo
	scorer    scorer.Scorer
	limiter   ratelimit.Limiter
	cache     cache.Client
	notifier  notify.Notifier
	metrics   *observability.Metrics
}

func NewService(
	baseLog *logger.Logger,
	subs repos.SubmissionRepo,
	questions repos.QuestionRepo,
	sc scorer.Scorer,
	limiter ratelimit.Limiter,
	c cache.Client,
	notifier notify.Notifier,
	metrics *observability.Metrics,
) Service {
	return &service{
		log:       baseLog.With("service", "SubmissionPipeline"),
		subs:      subs,
		questions: questions,
		scorer:    sc,
		limiter:   limiter,
		cache:     c,
		notifier:  notifier,
		metrics:   metrics,
	}
}

func (s *service) Submit(ctx context.Context, userID uuid.UUID, subject string, answers []types.SubmittedAnswer) (Ack, error) {
	if userID == uuid.Nil || subject == "" || len(answers) == 0 || len(answers) > maxAnswersPerSubmission {
		return Ack{}, pkgerrors.ErrInvalidArgument
	}

	decision, err := s.limiter.Allow(ctx, userID, ratelimit.ActionSubmit)
	if err != nil {
		return Ack{}, err
	}
	if !decision.Allowed {
		s.metrics.RateLimited(ratelimit.ActionSubmit)
		return Ack{}, &ratelimit.LimitExceededError{Action: ratelimit.ActionSubmit, RetryAfter: decision.RetryAfter}
	}

	ids := make([]uuid.UUID, 0, len(answers))
	for _, ans := range answers {
		ids = append(ids, ans.QuestionID)
	}
	questions, err := s.questions.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return Ack{}, err
	}
	for _, q := range questions {
		if q.Subject != subject {
			return Ack{}, fmt.Errorf("question %s is not a %s question: %w", q.ID, subject, pkgerrors.ErrInvalidArgument)
		}
	}

	outcome, err := s.scorer.Score(questions, answers)
	if err != nil {
		return Ack{}, fmt.Errorf("%s: %w", err, pkgerrors.ErrInvalidArgument)
	}

	rawAnswers, err := json.Marshal(answers)
	if err != nil {
		return Ack{}, err
	}
	sub := &types.Submission{
		UserID:     userID,
		Subject:    subject,
		Answers:    datatypes.JSON(rawAnswers),
		Status:     types.StatusPending,
		QuickScore: outcome.QuickScore,
	}
	if err := s.subs.Create(dbctx.Context{Ctx: ctx}, sub); err != nil {
		return Ack{}, err
	}

	// Hand off to the background workers. If this transition is lost to a
	// crash, the stale-pending sweep in the worker pool picks the row up.
	if _, err := s.subs.Transition(dbctx.Context{Ctx: ctx}, sub.ID, types.StatusPending, types.StatusScoring, nil); err != nil {
		return Ack{}, err
	}
	sub.Status = types.StatusScoring
	s.metrics.Transition(string(types.StatusScoring))

	mirrorStatus(ctx, s.cache, s.log, sub)
	s.notifier.SubmissionStatus(ctx, sub.ID, userID, sub.Status)

	s.log.Info("submission accepted",
		"submission_id", sub.ID,
		"user_id", userID,
		"subject", subject,
		"quick_score", outcome.QuickScore,
	)
	return Ack{ID: sub.ID, Status: sub.Status, QuickScore: outcome.QuickScore}, nil
}

func (s *service) GetStatus(ctx context.Context, userID, submissionID uuid.UUID) (StatusView, error) {
	if userID == uuid.Nil || submissionID == uuid.Nil {
		return StatusView{}, pkgerrors.ErrInvalidArgument
	}

	if raw, ok, err := s.cache.GetString(ctx, cache.SubmissionStatusKey(submissionID)); err == nil && ok {
		var payload statusPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			if payload.UserID != userID {
				return StatusView{}, pkgerrors.ErrNotFound
			}
			s.metrics.CacheHit("status")
			return StatusView{
				ID:         submissionID,
				Status:     payload.Status,
				RetryCount: payload.RetryCount,
				UpdatedAt:  payload.UpdatedAt,
			}, nil
		}
	}
	s.metrics.CacheMiss("status")

	sub, err := s.owned(ctx, userID, submissionID)
	if err != nil {
		return StatusView{}, err
	}
	mirrorStatus(ctx, s.cache, s.log, sub)
	return StatusView{
		ID:         sub.ID,
		Status:     sub.Status,
		RetryCount: sub.RetryCount,
		UpdatedAt:  sub.UpdatedAt,
	}, nil
}

func (s *service) GetResult(ctx context.Context, userID, submissionID uuid.UUID) (ResultView, error) {
	if userID == uuid.Nil || submissionID == uuid.Nil {
		return ResultView{}, pkgerrors.ErrInvalidArgument
	}

	if raw, ok, err := s.cache.GetString(ctx, cache.SubmissionResultKey(submissionID)); err == nil && ok {
		var payload resultPayload
		if json.Unmarshal([]byte(raw), &payload) == nil && payload.Result != nil {
			if payload.UserID != userID {
				return ResultView{}, pkgerrors.ErrNotFound
			}
			s.metrics.CacheHit("result")
			return ResultView{
				ID:         submissionID,
				Status:     payload.Status,
				QuickScore: payload.Result.QuickScore,
				Result:     payload.Result,
			}, nil
		}
	}
	s.metrics.CacheMiss("result")

	sub, err := s.owned(ctx, userID, submissionID)
	if err != nil {
		return ResultView{}, err
	}
	view := ResultView{ID: sub.ID, Status: sub.Status, QuickScore: sub.QuickScore}
	if !sub.Status.Terminal() {
		return view, nil
	}

	var final types.FinalResult
	if len(sub.FinalResult) > 0 {
		if err := json.Unmarshal(sub.FinalResult, &final); err != nil {
			return ResultView{}, fmt.Errorf("corrupt final result for %s: %w", sub.ID, err)
		}
	} else {
		// Terminal row without a payload should not happen; synthesize the
		// minimal result rather than erroring a read.
		final = types.FinalResult{
			QuickScore:    sub.QuickScore,
			Failed:        sub.Status == types.StatusFailed,
			FailureReason: sub.LastError,
		}
	}
	view.Result = &final
	mirrorResult(ctx, s.cache, s.log, sub, &final)
	return view, nil
}

// owned loads a submission and hides it from everyone but its author.
func (s *service) owned(ctx context.Context, userID, submissionID uuid.UUID) (*types.Submission, error) {
	sub, err := s.subs.GetByID(dbctx.Context{Ctx: ctx}, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, pkgerrors.ErrNotFound
	}
	return sub, nil
}

// Cache mirror payloads carry the owner id so a cache hit can still enforce
// ownership without touching the database.
type statusPayload struct {
	UserID     uuid.UUID              `json:"user_id"`
	Status     types.SubmissionStatus `json:"status"`
	RetryCount int                    `json:"retry_count"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type resultPayload struct {
	UserID uuid.UUID              `json:"user_id"`
	Status types.SubmissionStatus `json:"status"`
	Result *types.FinalResult     `json:"result"`
}

// mirrorStatus refreshes the status mirror. Best effort: the database row is
// authoritative and a failed mirror write only costs a later cache miss.
func mirrorStatus(ctx context.Context, c cache.Client, log *logger.Logger, sub *types.Submission) {
	payload := statusPayload{
		UserID:     sub.UserID,
		Status:     sub.Status,
		RetryCount: sub.RetryCount,
		UpdatedAt:  sub.UpdatedAt,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := c.SetString(ctx, cache.SubmissionStatusKey(sub.ID), string(raw), cache.StatusTTL); err != nil {
		log.Warn("status mirror write failed", "submission_id", sub.ID, "error", err)
	}
}

func mirrorResult(ctx context.Context, c cache.Client, log *logger.Logger, sub *types.Submission, final *types.FinalResult) {
	raw, err := json.Marshal(resultPayload{UserID: sub.UserID, Status: sub.Status, Result: final})
	if err != nil {
		return
	}
	if err := c.SetString(ctx, cache.SubmissionResultKey(sub.ID), string(raw), cache.ResultTTL); err != nil {
		log.Warn("result mirror write failed", "submission_id", sub.ID, "error", err)
	}
}
