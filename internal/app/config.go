package app

import (
	"time"

	"github.com/yungbote/skillforge-backend/internal/gateway"
	"github.com/yungbote/skillforge-backend/internal/ledger"
	"github.com/yungbote/skillforge-backend/internal/pipeline"
	"github.com/yungbote/skillforge-backend/internal/pkg/envutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
)

type Config struct {
	Port         string
	JWTSecretKey string

	RateRules map[string]ratelimit.Rule

	Gateway gateway.Config
	Workers pipeline.WorkerConfig
	Ledger  ledger.Config

	RecommendPolicyPath string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:         envutil.GetEnv("PORT", "8080", log),
		JWTSecretKey: envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),

		RateRules: map[string]ratelimit.Rule{
			ratelimit.ActionSubmit: {
				Limit:  int64(envutil.GetEnvAsInt("RATE_SUBMIT_LIMIT", 30, log)),
				Window: envutil.GetEnvAsDuration("RATE_SUBMIT_WINDOW", time.Minute, log),
			},
			ratelimit.ActionAIFeedback: {
				Limit:  int64(envutil.GetEnvAsInt("RATE_AI_FEEDBACK_LIMIT", 20, log)),
				Window: envutil.GetEnvAsDuration("RATE_AI_FEEDBACK_WINDOW", time.Minute, log),
			},
			ratelimit.ActionRecommend: {
				Limit:  int64(envutil.GetEnvAsInt("RATE_RECOMMEND_LIMIT", 60, log)),
				Window: envutil.GetEnvAsDuration("RATE_RECOMMEND_WINDOW", time.Minute, log),
			},
		},

		Gateway: gateway.Config{
			MaxConcurrent:    envutil.GetEnvAsInt("LLM_MAX_CONCURRENT", 8, log),
			CallTimeout:      envutil.GetEnvAsDuration("LLM_CALL_TIMEOUT", 60*time.Second, log),
			BreakerThreshold: envutil.GetEnvAsInt("LLM_BREAKER_THRESHOLD", 5, log),
			BreakerWindow:    envutil.GetEnvAsDuration("LLM_BREAKER_WINDOW", time.Minute, log),
			BreakerCooldown:  envutil.GetEnvAsDuration("LLM_BREAKER_COOLDOWN", 30*time.Second, log),
		},

		Workers: pipeline.WorkerConfig{
			Workers:      envutil.GetEnvAsInt("WORKER_COUNT", 4, log),
			PollInterval: envutil.GetEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second, log),
			BatchSize:    envutil.GetEnvAsInt("WORKER_BATCH_SIZE", 25, log),
			LeaseTTL:     envutil.GetEnvAsDuration("WORKER_LEASE_TTL", 2*time.Minute, log),
			StaleAfter:   envutil.GetEnvAsDuration("WORKER_STALE_AFTER", 3*time.Minute, log),
			MaxRetries:   envutil.GetEnvAsInt("WORKER_MAX_RETRIES", 3, log),
			RetryBase:    envutil.GetEnvAsDuration("WORKER_RETRY_BASE", 2*time.Second, log),
			RetryMax:     envutil.GetEnvAsDuration("WORKER_RETRY_MAX", time.Minute, log),
		},

		Ledger: ledger.Config{
			SmoothingAlpha: envutil.GetEnvAsFloat("MASTERY_SMOOTHING_ALPHA", 0.3, log),
			HalfLifeDays:   envutil.GetEnvAsFloat("WEAKNESS_HALF_LIFE_DAYS", 14, log),
			Epsilon:        envutil.GetEnvAsFloat("WEAKNESS_EPSILON", 0.1, log),
		},

		RecommendPolicyPath: envutil.GetEnv("RECOMMEND_POLICY_FILE", "", log),
	}
}
