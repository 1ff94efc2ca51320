package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/skillforge-backend/internal/http/response"
	"github.com/yungbote/skillforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
	"github.com/yungbote/skillforge-backend/internal/recommend"
)

type RecommendationHandler struct {
	log     *logger.Logger
	engine  recommend.Engine
	limiter ratelimit.Limiter
}

func NewRecommendationHandler(log *logger.Logger, engine recommend.Engine, limiter ratelimit.Limiter) *RecommendationHandler {
	return &RecommendationHandler{
		log:     log.With("handler", "RecommendationHandler"),
		engine:  engine,
		limiter: limiter,
	}
}

func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	decision, err := h.limiter.Allow(c.Request.Context(), userID, ratelimit.ActionRecommend)
	if err == nil && !decision.Allowed {
		response.RespondFromError(c, &ratelimit.LimitExceededError{
			Action:     ratelimit.ActionRecommend,
			RetryAfter: decision.RetryAfter,
		})
		return
	}
	subject := c.Query("subject")
	count := 10
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			response.RespondError(c, http.StatusBadRequest, "invalid_count", err)
			return
		}
		count = n
	}
	plan, err := h.engine.Plan(dbctx.Context{Ctx: c.Request.Context()}, userID, subject, count)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, plan)
}
