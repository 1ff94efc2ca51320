package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillforge-backend/internal/cache"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// Channel carrying submission status events. Consumers (websocket fan-out,
// other services) subscribe to it; this side only publishes.
const SubmissionChannel = "events:submission"

type StatusEvent struct {
	SubmissionID uuid.UUID              `json:"submission_id"`
	UserID       uuid.UUID              `json:"user_id"`
	Status       types.SubmissionStatus `json:"status"`
	At           time.Time              `json:"at"`
}

// Notifier broadcasts pipeline progress. Fire-and-forget: delivery is best
// effort and never blocks or fails a transition.
type Notifier interface {
	SubmissionStatus(ctx context.Context, submissionID, userID uuid.UUID, status types.SubmissionStatus)
}

type notifier struct {
	log   *logger.Logger
	cache cache.Client
}

func NewNotifier(baseLog *logger.Logger, c cache.Client) Notifier {
	return &notifier{
		log:   baseLog.With("service", "Notifier"),
		cache: c,
	}
}

func (n *notifier) SubmissionStatus(ctx context.Context, submissionID, userID uuid.UUID, status types.SubmissionStatus) {
	evt := StatusEvent{
		SubmissionID: submissionID,
		UserID:       userID,
		Status:       status,
		At:           time.Now().UTC(),
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		n.log.Warn("status event marshal failed", "submission_id", submissionID, "error", err)
		return
	}
	if err := n.cache.Publish(ctx, SubmissionChannel, string(raw)); err != nil {
		n.log.Warn("status event publish failed", "submission_id", submissionID, "error", err)
	}
}
