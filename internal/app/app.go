package app

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/skillforge-backend/internal/cache"
	"github.com/yungbote/skillforge-backend/internal/data/db"
	"github.com/yungbote/skillforge-backend/internal/data/repos"
	"github.com/yungbote/skillforge-backend/internal/gateway"
	httpserver "github.com/yungbote/skillforge-backend/internal/http"
	httpH "github.com/yungbote/skillforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/skillforge-backend/internal/http/middleware"
	"github.com/yungbote/skillforge-backend/internal/ledger"
	"github.com/yungbote/skillforge-backend/internal/notify"
	"github.com/yungbote/skillforge-backend/internal/observability"
	"github.com/yungbote/skillforge-backend/internal/pipeline"
	"github.com/yungbote/skillforge-backend/internal/pkg/clock"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
	"github.com/yungbote/skillforge-backend/internal/recommend"
	"github.com/yungbote/skillforge-backend/internal/scorer"
)

type App struct {
	Log     *logger.Logger
	Cfg     Config
	Server  *httpserver.Server
	Metrics *observability.Metrics

	cache  cache.Client
	pool   *pipeline.Pool
	cancel context.CancelFunc
	done   chan struct{}
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	redisCache, err := cache.NewRedisCache(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	metrics := observability.NewMetrics()
	clk := clock.System()

	// Repos
	submissionRepo := repos.NewSubmissionRepo(theDB, log)
	questionRepo := repos.NewQuestionRepo(theDB, log)
	masteryRepo := repos.NewTopicMasteryRepo(theDB, log)
	weaknessRepo := repos.NewWeaknessSignalRepo(theDB, log)
	aiCallLogRepo := repos.NewAICallLogRepo(theDB, log)

	// Services
	fastScorer := scorer.NewScorer(log)
	limiter := ratelimit.NewLimiter(log, redisCache, clk, cfg.RateRules)
	notifier := notify.NewNotifier(log, redisCache)
	skills := ledger.NewService(log, cfg.Ledger, clk, masteryRepo, weaknessRepo)

	provider, err := gateway.NewOpenAIProvider(log)
	if err != nil {
		redisCache.Close()
		log.Sync()
		return nil, fmt.Errorf("init model provider: %w", err)
	}
	breaker := gateway.NewBreaker(clk, cfg.Gateway.BreakerThreshold, cfg.Gateway.BreakerWindow, cfg.Gateway.BreakerCooldown)
	gw := gateway.New(log, provider, breaker, cfg.Gateway, metrics, aiCallLogRepo)

	pipelineService := pipeline.NewService(log, submissionRepo, questionRepo, fastScorer, limiter, redisCache, notifier, metrics)
	pool := pipeline.NewPool(log, cfg.Workers, pg, submissionRepo, questionRepo, fastScorer, gw, limiter, skills, redisCache, notifier, metrics)

	policy, err := recommend.LoadPolicy(cfg.RecommendPolicyPath)
	if err != nil {
		log.Warn("recommend policy load failed, using defaults", "path", cfg.RecommendPolicyPath, "error", err)
	}
	engine := recommend.NewEngine(log, policy, submissionRepo, questionRepo, skills)

	// HTTP
	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:                   log,
		Metrics:               metrics,
		AuthMiddleware:        httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		SubmissionHandler:     httpH.NewSubmissionHandler(log, pipelineService),
		RecommendationHandler: httpH.NewRecommendationHandler(log, engine, limiter),
		MasteryHandler:        httpH.NewMasteryHandler(log, skills),
		HealthHandler:         httpH.NewHealthHandler(),
		MetricsHandler:        httpH.NewMetricsHandler(metrics),
	})

	return &App{
		Log:     log,
		Cfg:     cfg,
		Server:  server,
		Metrics: metrics,
		cache:   redisCache,
		pool:    pool,
	}, nil
}

// Start launches the background worker pool.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.pool.Run(ctx)
	}()
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(":" + a.Cfg.Port)
}

// Close stops the workers, waits for them to drain and releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		if a.done != nil {
			<-a.done
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Log.Warn("redis close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
