package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/observability"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type GenerateRequest struct {
	UserID       uuid.UUID
	SubmissionID uuid.UUID
	System       string
	Prompt       string
}

type GenerateResult struct {
	Text    string
	Latency time.Duration
}

// Gateway mediates every provider call: bounded concurrency (callers queue on
// the semaphore, they never fail fast for load), a hard per-call timeout, and
// a circuit breaker over sustained failure. Retry policy belongs to the
// caller; the gateway only classifies.
type Gateway interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

type Config struct {
	MaxConcurrent    int
	CallTimeout      time.Duration
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration
}

type gateway struct {
	log      *logger.Logger
	provider Provider
	sem      *semaphore.Weighted
	breaker  *Breaker
	timeout  time.Duration
	metrics  *observability.Metrics
	callLog  repos.AICallLogRepo
}

func New(baseLog *logger.Logger, provider Provider, breaker *Breaker, cfg Config, metrics *observability.Metrics, callLog repos.AICallLogRepo) Gateway {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &gateway{
		log:      baseLog.With("service", "ModelGateway"),
		provider: provider,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		breaker:  breaker,
		timeout:  timeout,
		metrics:  metrics,
		callLog:  callLog,
	}
}

func (g *gateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if !g.breaker.Allow() {
		g.metrics.BreakerRejected()
		return GenerateResult{}, Transient(ErrCircuitOpen)
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return GenerateResult{}, err
	}
	defer g.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.metrics.LLMCallStarted()
	start := time.Now()
	text, usage, err := g.provider.Generate(callCtx, req.System, req.Prompt)
	latency := time.Since(start)

	outcome := "ok"
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case IsPermanent(err):
		outcome = "permanent"
		g.breaker.RecordFailure()
	default:
		outcome = "transient"
		g.breaker.RecordFailure()
	}
	g.metrics.LLMCallFinished(outcome, latency)
	g.audit(ctx, req, usage, latency, err)

	if err != nil {
		g.log.Warn("provider call failed",
			"submission_id", req.SubmissionID,
			"outcome", outcome,
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return GenerateResult{}, err
	}
	return GenerateResult{Text: text, Latency: latency}, nil
}

// audit writes the per-call log row. Best effort: a failed audit write never
// fails the call.
func (g *gateway) audit(ctx context.Context, req GenerateRequest, usage Usage, latency time.Duration, callErr error) {
	if g.callLog == nil {
		return
	}
	row := &types.AICallLog{
		Model:     g.provider.Model(),
		Success:   callErr == nil,
		LatencyMS: latency.Milliseconds(),
	}
	if req.UserID != uuid.Nil {
		uid := req.UserID
		row.UserID = &uid
	}
	if req.SubmissionID != uuid.Nil {
		sid := req.SubmissionID
		row.SubmissionID = &sid
	}
	if callErr != nil {
		row.Error = callErr.Error()
	}
	if raw, err := json.Marshal(usage); err == nil {
		row.Usage = datatypes.JSON(raw)
	}
	if err := g.callLog.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		g.log.Warn("ai call log write failed", "error", err)
	}
}
