package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/skillforge-backend/internal/cache"
	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/gateway"
	"github.com/yungbote/skillforge-backend/internal/ledger"
	"github.com/yungbote/skillforge-backend/internal/notify"
	"github.com/yungbote/skillforge-backend/internal/observability"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
	"github.com/yungbote/skillforge-backend/internal/scorer"
)

const feedbackSystemPrompt = `You are a tutor reviewing a student's graded quiz.
Reply with a JSON object: {"feedback": "...", "recommendations": ["...", ...]}.
Feedback is 2-4 sentences addressed to the student. Recommendations are short
study actions. Reply with JSON only.`

type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	// LeaseTTL bounds how long a crashed worker can block a submission.
	LeaseTTL time.Duration
	// StaleAfter is how long an ai_processing row may sit untouched before the
	// pool assumes its worker died and reclaims it. Must exceed LeaseTTL.
	StaleAfter time.Duration
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 2 * time.Minute
	}
	if c.StaleAfter <= c.LeaseTTL {
		c.StaleAfter = c.LeaseTTL + time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Minute
	}
	return c
}

// TxRunner runs a function inside a single database transaction. Completion
// needs one so the terminal transition and the ledger writes commit together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

// Pool drives submissions from scoring to a terminal state. The submission
// table is the queue: workers poll for runnable rows, claim each with a cache
// lease, and advance it through guarded transitions, so a duplicate pickup is
// harmless even if two workers race past the lease.
type Pool struct {
	log       *logger.Logger
	cfg       WorkerConfig
	tx        TxRunner
	subs      repos.SubmissionRepo
	questions repos.QuestionRepo
	scorer    scorer.Scorer
	gw        gateway.Gateway
	limiter   ratelimit.Limiter
	skills    ledger.Service
	cache     cache.Client
	notifier  notify.Notifier
	metrics   *observability.Metrics
}

func NewPool(
	baseLog *logger.Logger,
	cfg WorkerConfig,
	tx TxRunner,
	subs repos.SubmissionRepo,
	questions repos.QuestionRepo,
	sc scorer.Scorer,
	gw gateway.Gateway,
	limiter ratelimit.Limiter,
	skills ledger.Service,
	c cache.Client,
	notifier notify.Notifier,
	metrics *observability.Metrics,
) *Pool {
	return &Pool{
		log:       baseLog.With("service", "SubmissionWorkers"),
		cfg:       cfg.withDefaults(),
		tx:        tx,
		subs:      subs,
		questions: questions,
		scorer:    sc,
		gw:        gw,
		limiter:   limiter,
		skills:    skills,
		cache:     c,
		notifier:  notifier,
		metrics:   metrics,
	}
}

// Run blocks until ctx is canceled and every worker has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
	p.log.Info("worker pool drained")
}

func (p *Pool) loop(ctx context.Context, worker int) {
	log := p.log.With("worker", worker)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-p.cfg.StaleAfter)
		ids, err := p.subs.ListRunnable(dbctx.Context{Ctx: ctx}, cutoff, p.cfg.BatchSize)
		if err != nil {
			log.Warn("runnable poll failed", "error", err)
			continue
		}
		p.metrics.SetQueueDepth(len(ids))

		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			if err := p.claim(ctx, id); err != nil {
				log.Warn("submission processing failed", "submission_id", id, "error", err)
			}
		}
	}
}

// claim takes the lease and processes the submission. A lost race on the
// lease means another worker owns it; skip silently.
func (p *Pool) claim(ctx context.Context, id uuid.UUID) error {
	lease := cache.NewLease(p.cache, id, p.cfg.LeaseTTL)
	held, err := lease.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lease acquire: %w", err)
	}
	if !held {
		return nil
	}
	// Release on the background context so shutdown still frees the claim.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			p.log.Warn("lease release failed", "submission_id", id, "error", err)
		}
	}()
	return p.process(ctx, id, lease)
}

func (p *Pool) process(ctx context.Context, id uuid.UUID, lease *cache.Lease) error {
	sub, err := p.subs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return err
	}

	switch sub.Status {
	case types.StatusPending:
		// Stranded before its first transition; put it back on the rails.
		if ok, err := p.transition(ctx, sub, types.StatusPending, types.StatusScoring, nil); err != nil || !ok {
			return err
		}
		sub.Status = types.StatusScoring
		fallthrough
	case types.StatusScoring:
		if ok, err := p.transition(ctx, sub, types.StatusScoring, types.StatusAIProcessing, nil); err != nil || !ok {
			return err
		}
		sub.Status = types.StatusAIProcessing
	case types.StatusAIProcessing:
		// Reclaimed after a stale lease; retry_count already reflects past work.
	default:
		return nil
	}

	questions, outcome, err := p.regrade(ctx, sub)
	if err != nil {
		// The submission no longer grades cleanly (question pool changed out
		// from under it). Unrecoverable.
		return p.fail(ctx, sub, nil, fmt.Sprintf("grading context lost: %v", err))
	}

	return p.analyze(ctx, sub, questions, outcome, lease)
}

// regrade rebuilds the deterministic grading from the stored answers. The
// scorer is pure, so this always matches what Submit computed.
func (p *Pool) regrade(ctx context.Context, sub *types.Submission) ([]*types.Question, scorer.Outcome, error) {
	var answers []types.SubmittedAnswer
	if err := json.Unmarshal(sub.Answers, &answers); err != nil {
		return nil, scorer.Outcome{}, fmt.Errorf("stored answers: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(answers))
	for _, ans := range answers {
		ids = append(ids, ans.QuestionID)
	}
	questions, err := p.questions.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, scorer.Outcome{}, err
	}
	outcome, err := p.scorer.Score(questions, answers)
	if err != nil {
		return nil, scorer.Outcome{}, err
	}
	return questions, outcome, nil
}

// analyze drives the model call with bounded retries. Transient failures
// self-loop through ai_processing with backoff; permanent failures and retry
// exhaustion land in failed with the quick score preserved.
func (p *Pool) analyze(ctx context.Context, sub *types.Submission, questions []*types.Question, outcome scorer.Outcome, lease *cache.Lease) error {
	attempts := sub.RetryCount
	prompt := buildPrompt(sub, questions, outcome)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		decision, err := p.limiter.Allow(ctx, sub.UserID, ratelimit.ActionAIFeedback)
		if err == nil && !decision.Allowed {
			p.metrics.RateLimited(ratelimit.ActionAIFeedback)
			if err := p.wait(ctx, decision.RetryAfter, lease, sub.ID); err != nil {
				return err
			}
			continue
		}

		res, err := p.gw.Generate(ctx, gateway.GenerateRequest{
			UserID:       sub.UserID,
			SubmissionID: sub.ID,
			System:       feedbackSystemPrompt,
			Prompt:       prompt,
		})
		if err == nil {
			return p.complete(ctx, sub, outcome, res.Text)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if gateway.IsPermanent(err) {
			return p.fail(ctx, sub, &outcome, fmt.Sprintf("analysis rejected: %v", err))
		}

		attempts++
		if attempts >= p.cfg.MaxRetries {
			return p.fail(ctx, sub, &outcome, fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, err))
		}
		ok, terr := p.transition(ctx, sub, types.StatusAIProcessing, types.StatusAIProcessing, map[string]interface{}{
			"retry_count": attempts,
			"last_error":  err.Error(),
		})
		if terr != nil {
			return terr
		}
		if !ok {
			// Someone else finished it while we were failing. Let them win.
			return nil
		}
		sub.RetryCount = attempts
		p.metrics.Retry()
		p.log.Warn("transient analysis failure, backing off",
			"submission_id", sub.ID,
			"attempt", attempts,
			"error", err,
		)
		if err := p.wait(ctx, RetryDelay(attempts, p.cfg.RetryBase, p.cfg.RetryMax), lease, sub.ID); err != nil {
			return err
		}
	}
}

// wait sleeps and keeps the lease alive. A lease that can no longer be
// extended means another worker took over; stop immediately.
func (p *Pool) wait(ctx context.Context, d time.Duration, lease *cache.Lease, id uuid.UUID) error {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	held, err := lease.Extend(ctx)
	if err != nil {
		return fmt.Errorf("lease extend: %w", err)
	}
	if !held {
		return fmt.Errorf("lease lost for %s", id)
	}
	return nil
}

// complete applies the terminal transition and the ledger updates in one
// transaction. The guarded transition makes completion idempotent: if another
// worker got there first, RowsAffected is zero and the ledger is untouched,
// so a submission can never count twice.
func (p *Pool) complete(ctx context.Context, sub *types.Submission, outcome scorer.Outcome, modelText string) error {
	feedback, recommendations := parseModelOutput(modelText)
	final := types.FinalResult{
		QuickScore:      sub.QuickScore,
		PerQuestion:     outcome.Results,
		Feedback:        feedback,
		Recommendations: recommendations,
	}
	raw, err := json.Marshal(final)
	if err != nil {
		return err
	}

	applied := false
	now := time.Now().UTC()
	err = p.tx.InTx(ctx, func(dbc dbctx.Context) error {
		ok, err := p.subs.Transition(dbc, sub.ID, types.StatusAIProcessing, types.StatusCompleted, map[string]interface{}{
			"final_result": datatypes.JSON(raw),
			"completed_at": now,
			"last_error":   "",
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true
		for _, res := range outcome.Results {
			if err := p.skills.RecordOutcome(dbc, sub.UserID, sub.Subject, res.Topic, res.Correct, res.ErrorTag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	sub.Status = types.StatusCompleted
	sub.CompletedAt = &now
	sub.UpdatedAt = now
	p.metrics.Transition(string(types.StatusCompleted))
	mirrorStatus(ctx, p.cache, p.log, sub)
	mirrorResult(ctx, p.cache, p.log, sub, &final)
	p.notifier.SubmissionStatus(ctx, sub.ID, sub.UserID, types.StatusCompleted)
	p.log.Info("submission completed", "submission_id", sub.ID, "quick_score", sub.QuickScore)
	return nil
}

// fail lands the submission in the failed state. The quick score survives in
// the final result so the user never loses the deterministic grading.
func (p *Pool) fail(ctx context.Context, sub *types.Submission, outcome *scorer.Outcome, reason string) error {
	final := types.FinalResult{
		QuickScore:    sub.QuickScore,
		Failed:        true,
		FailureReason: reason,
	}
	if outcome != nil {
		final.PerQuestion = outcome.Results
	}
	raw, err := json.Marshal(final)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	ok, err := p.transition(ctx, sub, types.StatusAIProcessing, types.StatusFailed, map[string]interface{}{
		"final_result": datatypes.JSON(raw),
		"completed_at": now,
		"last_error":   reason,
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	sub.Status = types.StatusFailed
	sub.CompletedAt = &now
	sub.UpdatedAt = now
	mirrorStatus(ctx, p.cache, p.log, sub)
	mirrorResult(ctx, p.cache, p.log, sub, &final)
	p.log.Warn("submission failed", "submission_id", sub.ID, "reason", reason)
	return nil
}

func (p *Pool) transition(ctx context.Context, sub *types.Submission, from, to types.SubmissionStatus, updates map[string]interface{}) (bool, error) {
	ok, err := p.subs.Transition(dbctx.Context{Ctx: ctx}, sub.ID, from, to, updates)
	if err != nil {
		return false, err
	}
	if ok && from != to {
		p.metrics.Transition(string(to))
		p.notifier.SubmissionStatus(ctx, sub.ID, sub.UserID, to)
	}
	return ok, nil
}

func buildPrompt(sub *types.Submission, questions []*types.Question, outcome scorer.Outcome) string {
	byID := make(map[uuid.UUID]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nScore: %.0f%%\n\n", sub.Subject, outcome.QuickScore*100)
	for i, res := range outcome.Results {
		verdict := "correct"
		if !res.Correct {
			verdict = "incorrect"
		}
		prompt := ""
		if q := byID[res.QuestionID]; q != nil {
			prompt = q.Prompt
		}
		fmt.Fprintf(&b, "Q%d (%s, %s): %s\n", i+1, res.Topic, verdict, prompt)
	}
	return b.String()
}

type modelPayload struct {
	Feedback        string   `json:"feedback"`
	Recommendations []string `json:"recommendations"`
}

// parseModelOutput accepts the requested JSON shape but tolerates a model
// that answers in prose, in which case the whole reply becomes the feedback.
func parseModelOutput(text string) (string, []string) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var payload modelPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && payload.Feedback != "" {
		return payload.Feedback, payload.Recommendations
	}
	return strings.TrimSpace(text), nil
}
