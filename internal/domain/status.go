package domain

// SubmissionStatus is the pipeline state machine. Transitions happen only
// through guarded repo updates, never by writing the column directly.
type SubmissionStatus string

const (
	StatusPending      SubmissionStatus = "pending"
	StatusScoring      SubmissionStatus = "scoring"
	StatusAIProcessing SubmissionStatus = "ai_processing"
	StatusCompleted    SubmissionStatus = "completed"
	StatusFailed       SubmissionStatus = "failed"
)

var transitions = map[SubmissionStatus][]SubmissionStatus{
	StatusPending:      {StatusScoring},
	StatusScoring:      {StatusAIProcessing},
	StatusAIProcessing: {StatusAIProcessing, StatusCompleted, StatusFailed},
	StatusCompleted:    {},
	StatusFailed:       {},
}

func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SubmissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s SubmissionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}
