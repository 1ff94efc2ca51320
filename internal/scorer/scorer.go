package scorer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

// Outcome is the synchronous, deterministic grading of one submission.
type Outcome struct {
	QuickScore float64
	Results    []types.QuestionResult
}

type Scorer interface {
	// Score grades answers against their question specs. Every answer must
	// reference a known question; a dangling reference means the submission is
	// structurally invalid and never enters the pipeline.
	Score(questions []*types.Question, answers []types.SubmittedAnswer) (Outcome, error)
}

type scorer struct {
	log *logger.Logger
}

func NewScorer(baseLog *logger.Logger) Scorer {
	return &scorer{log: baseLog.With("service", "FastScorer")}
}

func (s *scorer) Score(questions []*types.Question, answers []types.SubmittedAnswer) (Outcome, error) {
	if len(answers) == 0 {
		return Outcome{}, fmt.Errorf("no answers")
	}
	byID := make(map[uuid.UUID]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	out := Outcome{Results: make([]types.QuestionResult, 0, len(answers))}
	correct := 0
	for _, ans := range answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			return Outcome{}, fmt.Errorf("unknown question %s", ans.QuestionID)
		}
		res := types.QuestionResult{
			QuestionID: q.ID,
			Topic:      q.Topic,
			Correct:    grade(q, ans.Answer),
		}
		if res.Correct {
			correct++
		} else {
			res.ErrorTag = errorTag(q)
		}
		out.Results = append(out.Results, res)
	}
	out.QuickScore = float64(correct) / float64(len(answers))
	return out, nil
}

func grade(q *types.Question, answer string) bool {
	supplied := strings.TrimSpace(answer)
	expected := strings.TrimSpace(q.CorrectAnswer)
	switch q.AnswerKind {
	case types.AnswerKindNumeric:
		got, err := strconv.ParseFloat(supplied, 64)
		if err != nil {
			return false
		}
		want, err := strconv.ParseFloat(expected, 64)
		if err != nil {
			return false
		}
		return math.Abs(got-want) <= q.Tolerance
	case types.AnswerKindChoice, types.AnswerKindText:
		return strings.EqualFold(supplied, expected)
	default:
		return strings.EqualFold(supplied, expected)
	}
}

// errorTag maps a miss to the weakness type the ledger tracks. Questions tag
// their dominant misconception; untagged questions fall back to the topic.
func errorTag(q *types.Question) string {
	if q.ErrorTag != "" {
		return q.ErrorTag
	}
	return q.Topic
}
