package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/skillforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/skillforge-backend/internal/http/middleware"
	"github.com/yungbote/skillforge-backend/internal/observability"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware

	SubmissionHandler     *httpH.SubmissionHandler
	RecommendationHandler *httpH.RecommendationHandler
	MasteryHandler        *httpH.MasteryHandler

	HealthHandler  *httpH.HealthHandler
	MetricsHandler *httpH.MetricsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health + metrics (public)
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", cfg.MetricsHandler.Expose)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Submissions
		if cfg.SubmissionHandler != nil {
			protected.POST("/submissions", cfg.SubmissionHandler.Submit)
			protected.GET("/submissions/:id/status", cfg.SubmissionHandler.GetStatus)
			protected.GET("/submissions/:id/result", cfg.SubmissionHandler.GetResult)
		}

		// Recommendations
		if cfg.RecommendationHandler != nil {
			protected.GET("/recommendations", cfg.RecommendationHandler.GetRecommendations)
		}

		// Mastery
		if cfg.MasteryHandler != nil {
			protected.GET("/mastery", cfg.MasteryHandler.ListMastery)
		}
	}

	return r
}
