package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/http/response"
	"github.com/yungbote/skillforge-backend/internal/ledger"
	"github.com/yungbote/skillforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

type MasteryHandler struct {
	log    *logger.Logger
	skills ledger.Service
}

func NewMasteryHandler(log *logger.Logger, skills ledger.Service) *MasteryHandler {
	return &MasteryHandler{
		log:    log.With("handler", "MasteryHandler"),
		skills: skills,
	}
}

type masteryView struct {
	Subject         string             `json:"subject"`
	Topic           string             `json:"topic"`
	Level           types.MasteryLevel `json:"level"`
	TotalAttempts   int64              `json:"total_attempts"`
	CorrectAttempts int64              `json:"correct_attempts"`
	AverageScore    float64            `json:"average_score"`
	LastActivity    time.Time          `json:"last_activity"`
}

func (h *MasteryHandler) ListMastery(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	var rows []*types.TopicMastery
	var err error
	if subject := c.Query("subject"); subject != "" {
		rows, err = h.skills.ListMasteryBySubject(dbc, userID, subject)
	} else {
		rows, err = h.skills.ListMastery(dbc, userID)
	}
	if err != nil {
		response.RespondFromError(c, err)
		return
	}

	views := make([]masteryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, masteryView{
			Subject:         row.Subject,
			Topic:           row.Topic,
			Level:           row.Level(),
			TotalAttempts:   row.TotalAttempts,
			CorrectAttempts: row.CorrectAttempts,
			AverageScore:    row.AverageScore,
			LastActivity:    row.LastActivity,
		})
	}
	response.RespondOK(c, gin.H{"mastery": views})
}
