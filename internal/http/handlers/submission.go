package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/http/response"
	"github.com/yungbote/skillforge-backend/internal/pipeline"
	"github.com/yungbote/skillforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type SubmissionHandler struct {
	log      *logger.Logger
	pipeline pipeline.Service
}

func NewSubmissionHandler(log *logger.Logger, p pipeline.Service) *SubmissionHandler {
	return &SubmissionHandler{
		log:      log.With("handler", "SubmissionHandler"),
		pipeline: p,
	}
}

type submitRequest struct {
	Subject string                  `json:"subject" binding:"required"`
	Answers []types.SubmittedAnswer `json:"answers" binding:"required"`
}

// Submit accepts a quiz submission, grades it synchronously and queues the
// model analysis. Replies 202: the quick score is final, the feedback is not.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ack, err := h.pipeline.Submit(c.Request.Context(), userID, req.Subject, req.Answers)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondAccepted(c, ack)
}

func (h *SubmissionHandler) GetStatus(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	view, err := h.pipeline.GetStatus(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, view)
}

func (h *SubmissionHandler) GetResult(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	view, err := h.pipeline.GetResult(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, view)
}
