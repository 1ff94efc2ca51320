package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillforge-backend/internal/cache"
	"github.com/yungbote/skillforge-backend/internal/pkg/clock"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// Action classes with independent windows.
const (
	ActionSubmit     = "submit"
	ActionAIFeedback = "ai_feedback"
	ActionRecommend  = "recommend"
)

// Rule is one sliding-window cap: at most Limit requests per Window.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// Decision reports the admission outcome. RetryAfter is only meaningful when
// Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// LimitExceededError carries the retry hint to the HTTP layer. It unwraps to
// the rate-limited sentinel so callers can match on either.
type LimitExceededError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Action, e.RetryAfter)
}

func (e *LimitExceededError) Unwrap() error { return pkgerrors.ErrRateLimited }

type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID, action string) (Decision, error)
}

type limiter struct {
	log   *logger.Logger
	cache cache.Client
	clk   clock.Clock
	rules map[string]Rule
}

func NewLimiter(baseLog *logger.Logger, c cache.Client, clk clock.Clock, rules map[string]Rule) Limiter {
	if clk == nil {
		clk = clock.System()
	}
	return &limiter{
		log:   baseLog.With("service", "RateLimiter"),
		cache: c,
		clk:   clk,
		rules: rules,
	}
}

// Allow admits the request unless the user already spent the action's cap
// inside the window. Unknown actions are admitted: limiting is an explicit
// opt-in per action class. Cache loss only relaxes limiting, so cache errors
// fail open with a warning rather than rejecting user traffic.
func (l *limiter) Allow(ctx context.Context, userID uuid.UUID, action string) (Decision, error) {
	rule, ok := l.rules[action]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}, nil
	}
	key := cache.RateKey(userID, action)
	allowed, retryAfter, err := l.cache.WindowTake(ctx, key, l.clk.Now(), rule.Window, rule.Limit)
	if err != nil {
		l.log.Warn("rate window check failed, failing open", "action", action, "error", err)
		return Decision{Allowed: true}, nil
	}
	if !allowed {
		l.log.Debug("rate limited", "user_id", userID, "action", action, "retry_after", retryAfter)
	}
	return Decision{Allowed: allowed, RetryAfter: retryAfter}, nil
}
