package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/ledger"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
)

const (
	KindWeakness  = "weakness"
	KindReview    = "review"
	KindChallenge = "challenge"
)

// TopicAllocation is one slice of the recommended set: how many questions to
// draw from a topic and why that topic was chosen.
type TopicAllocation struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
	Kind  string `json:"kind"`
}

// Plan is the full recommendation for one (user, subject) request.
// WeaknessTopics carries the severity ranking itself, independent of the
// allocations: a weak topic keeps its rank and severity even when the count
// split leaves it zero questions.
type Plan struct {
	Subject          string                 `json:"subject"`
	ColdStart        bool                   `json:"cold_start"`
	RecentAccuracy   float64                `json:"recent_accuracy"`
	TargetDifficulty int                    `json:"target_difficulty"`
	WeaknessTopics   []ledger.TopicSeverity `json:"weakness_topics,omitempty"`
	Allocations      []TopicAllocation      `json:"allocations"`
	Rationale        string                 `json:"rationale"`
}

// maxReportedWeaknesses caps how many ranked topics the plan surfaces.
const maxReportedWeaknesses = 3

type Engine interface {
	// Plan builds a question plan of `count` slots for the user in a subject.
	// It never calls the model provider; everything is derived from stored
	// history, so it stays cheap and synchronous.
	Plan(dbc dbctx.Context, userID uuid.UUID, subject string, count int) (Plan, error)
}

type engine struct {
	log       *logger.Logger
	policy    Policy
	subs      repos.SubmissionRepo
	questions repos.QuestionRepo
	skills    ledger.Service
}

func NewEngine(baseLog *logger.Logger, policy Policy, subs repos.SubmissionRepo, questions repos.QuestionRepo, skills ledger.Service) Engine {
	return &engine{
		log:       baseLog.With("service", "RecommendEngine"),
		policy:    policy.normalized(),
		subs:      subs,
		questions: questions,
		skills:    skills,
	}
}

func (e *engine) Plan(dbc dbctx.Context, userID uuid.UUID, subject string, count int) (Plan, error) {
	if userID == uuid.Nil || subject == "" {
		return Plan{}, pkgerrors.ErrInvalidArgument
	}
	if count <= 0 {
		count = 10
	}

	stats, err := e.questions.ListTopicStats(dbc, subject)
	if err != nil {
		return Plan{}, err
	}
	if len(stats) == 0 {
		return Plan{}, pkgerrors.ErrNotFound
	}

	recent, err := e.subs.ListRecentCompleted(dbc, userID, subject, e.policy.RecentWindow)
	if err != nil {
		return Plan{}, err
	}
	if len(recent) < e.policy.MinAttempts {
		return e.coldStartPlan(subject, stats, count), nil
	}

	accuracy := recentAccuracy(recent)
	difficulty := e.targetDifficulty(accuracy)

	ranked, _, err := e.skills.WeaknessBySeverity(dbc, userID, subject)
	if err != nil {
		return Plan{}, err
	}
	mastery, err := e.skills.ListMasteryBySubject(dbc, userID, subject)
	if err != nil {
		return Plan{}, err
	}

	known := map[string]bool{}
	for _, st := range stats {
		known[st.Topic] = true
	}

	weaknessTopics := []ledger.TopicSeverity{}
	weakSet := map[string]bool{}
	for _, ts := range ranked {
		if !known[ts.Topic] {
			continue
		}
		weaknessTopics = append(weaknessTopics, ts)
		weakSet[ts.Topic] = true
		if len(weaknessTopics) == e.policy.TopWeaknessCount {
			break
		}
	}

	reviewTopics := reviewCandidates(mastery, weakSet, known)
	challengeTopics := challengeCandidates(stats, weakSet, difficulty)

	weaknessCount, reviewCount, challengeCount := e.splitCounts(count, len(weaknessTopics), len(reviewTopics), len(challengeTopics))

	allocations := []TopicAllocation{}
	allocations = append(allocations, allocateBySeverity(weaknessTopics, weaknessCount)...)
	allocations = append(allocations, allocateEvenly(reviewTopics, reviewCount, KindReview)...)
	allocations = append(allocations, allocateEvenly(challengeTopics, challengeCount, KindChallenge)...)
	if len(allocations) == 0 {
		// Nothing ranked at all: fall back to the question pool itself.
		allocations = allocateEvenly(topicNames(stats), count, KindReview)
	}

	reported := weaknessTopics
	if len(reported) > maxReportedWeaknesses {
		reported = reported[:maxReportedWeaknesses]
	}

	return Plan{
		Subject:          subject,
		RecentAccuracy:   accuracy,
		TargetDifficulty: difficulty,
		WeaknessTopics:   reported,
		Allocations:      allocations,
		Rationale:        e.rationale(accuracy, difficulty, len(recent), weaknessTopics),
	}, nil
}

// coldStartPlan spreads the request evenly over the subject's topics at the
// easiest difficulty. There is no history to rank against yet.
func (e *engine) coldStartPlan(subject string, stats []repos.TopicStat, count int) Plan {
	return Plan{
		Subject:          subject,
		ColdStart:        true,
		TargetDifficulty: e.policy.MinDifficulty,
		Allocations:      allocateEvenly(topicNames(stats), count, KindReview),
		Rationale:        fmt.Sprintf("not enough history yet; sampling every %s topic evenly at difficulty %d", subject, e.policy.MinDifficulty),
	}
}

func recentAccuracy(recent []*types.Submission) float64 {
	if len(recent) == 0 {
		return 0
	}
	sum := 0.0
	for _, sub := range recent {
		sum += sub.QuickScore
	}
	return sum / float64(len(recent))
}

// targetDifficulty is a step function over recent accuracy, clamped to the
// policy's difficulty range.
func (e *engine) targetDifficulty(accuracy float64) int {
	var level int
	switch {
	case accuracy >= 0.9:
		level = 5
	case accuracy >= 0.75:
		level = 4
	case accuracy >= 0.55:
		level = 3
	case accuracy >= 0.35:
		level = 2
	default:
		level = 1
	}
	if level < e.policy.MinDifficulty {
		level = e.policy.MinDifficulty
	}
	if level > e.policy.MaxDifficulty {
		level = e.policy.MaxDifficulty
	}
	return level
}

// splitCounts divides the requested count into the three buckets. Shares from
// buckets with no candidate topics spill into the weakness bucket first, then
// review, so the plan always sums to the requested count.
func (e *engine) splitCounts(count, nWeak, nReview, nChallenge int) (int, int, int) {
	weakness := int(math.Round(float64(count) * e.policy.WeaknessPercent))
	review := int(math.Round(float64(count) * e.policy.ReviewPercent))
	challenge := count - weakness - review
	if challenge < 0 {
		challenge = 0
		if weakness+review > count {
			review = count - weakness
		}
	}

	if nChallenge == 0 {
		weakness += challenge
		challenge = 0
	}
	if nReview == 0 {
		weakness += review
		review = 0
	}
	if nWeak == 0 {
		if nReview > 0 {
			review += weakness
		} else {
			challenge += weakness
		}
		weakness = 0
	}
	return weakness, review, challenge
}

// allocateBySeverity splits a bucket across topics in proportion to decayed
// severity. Remainder slots go to the most severe topics so a topic never
// receives fewer questions than a less severe one.
func allocateBySeverity(topics []ledger.TopicSeverity, total int) []TopicAllocation {
	if total <= 0 || len(topics) == 0 {
		return nil
	}
	sumSeverity := 0.0
	for _, ts := range topics {
		sumSeverity += ts.Severity
	}
	out := make([]TopicAllocation, len(topics))
	assigned := 0
	for i, ts := range topics {
		n := 0
		if sumSeverity > 0 {
			n = int(float64(total) * ts.Severity / sumSeverity)
		}
		out[i] = TopicAllocation{Topic: ts.Topic, Count: n, Kind: KindWeakness}
		assigned += n
	}
	for i := 0; assigned < total; i = (i + 1) % len(out) {
		out[i].Count++
		assigned++
	}
	kept := out[:0]
	for _, a := range out {
		if a.Count > 0 {
			kept = append(kept, a)
		}
	}
	return kept
}

func allocateEvenly(topics []string, total int, kind string) []TopicAllocation {
	if total <= 0 || len(topics) == 0 {
		return nil
	}
	out := []TopicAllocation{}
	base := total / len(topics)
	extra := total % len(topics)
	for i, topic := range topics {
		n := base
		if i < extra {
			n++
		}
		if n == 0 {
			break
		}
		out = append(out, TopicAllocation{Topic: topic, Count: n, Kind: kind})
	}
	return out
}

// reviewCandidates picks topics the user already does well in, least recently
// practiced first, skipping anything the weakness bucket already covers.
func reviewCandidates(mastery []*types.TopicMastery, weakSet map[string]bool, known map[string]bool) []string {
	eligible := []*types.TopicMastery{}
	for _, m := range mastery {
		if weakSet[m.Topic] || !known[m.Topic] {
			continue
		}
		level := m.Level()
		if level == types.MasteryProficient || level == types.MasteryMastered {
			eligible = append(eligible, m)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].LastActivity.Before(eligible[j].LastActivity)
	})
	out := make([]string, 0, len(eligible))
	for _, m := range eligible {
		out = append(out, m.Topic)
	}
	return out
}

// challengeCandidates are topics whose pool has questions above the current
// target difficulty, so there is headroom to stretch into.
func challengeCandidates(stats []repos.TopicStat, weakSet map[string]bool, difficulty int) []string {
	out := []string{}
	for _, st := range stats {
		if weakSet[st.Topic] {
			continue
		}
		if st.MaxDifficulty > difficulty {
			out = append(out, st.Topic)
		}
	}
	return out
}

func topicNames(stats []repos.TopicStat) []string {
	out := make([]string, 0, len(stats))
	for _, st := range stats {
		out = append(out, st.Topic)
	}
	return out
}

func (e *engine) rationale(accuracy float64, difficulty, window int, weaknesses []ledger.TopicSeverity) string {
	if len(weaknesses) == 0 {
		return fmt.Sprintf("%.0f%% accuracy over the last %d submissions; no active weak spots, targeting difficulty %d", accuracy*100, window, difficulty)
	}
	names := make([]string, 0, 3)
	for i, ts := range weaknesses {
		if i == 3 {
			break
		}
		names = append(names, ts.Topic)
	}
	return fmt.Sprintf("%.0f%% accuracy over the last %d submissions; focusing on %s at difficulty %d", accuracy*100, window, strings.Join(names, ", "), difficulty)
}
