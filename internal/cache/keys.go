package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key schema. Status mirrors live a day, results a week; rate windows and
// leases expire on their own schedule.
const (
	StatusTTL = 24 * time.Hour
	ResultTTL = 7 * 24 * time.Hour
)

func SubmissionStatusKey(id uuid.UUID) string {
	return fmt.Sprintf("sub:%s:status", id)
}

func SubmissionResultKey(id uuid.UUID) string {
	return fmt.Sprintf("sub:%s:result", id)
}

func RateKey(userID uuid.UUID, action string) string {
	return fmt.Sprintf("rate:%s:%s", userID, action)
}

func LeaseKey(submissionID uuid.UUID) string {
	return fmt.Sprintf("lease:%s", submissionID)
}
