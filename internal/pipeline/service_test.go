package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/skillforge-backend/internal/cache"
	"github.com/yungbote/skillforge-backend/internal/data/repos"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
	"github.com/yungbote/skillforge-backend/internal/pkg/logger"
	"github.com/yungbote/skillforge-backend/internal/ratelimit"
	"github.com/yungbote/skillforge-backend/internal/scorer"
)

// fakeSubs keeps submissions in memory and mirrors the repo's guarded
// transition semantics: the move applies only when the row is still in from.
type fakeSubs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Submission
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{rows: map[uuid.UUID]*types.Submission{}}
}

func (f *fakeSubs) Create(dbc dbctx.Context, sub *types.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	cp := *sub
	f.rows[sub.ID] = &cp
	return nil
}

func (f *fakeSubs) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubs) ListRecentCompleted(dbc dbctx.Context, userID uuid.UUID, subject string, limit int) ([]*types.Submission, error) {
	return nil, nil
}

func (f *fakeSubs) Transition(dbc dbctx.Context, id uuid.UUID, from, to types.SubmissionStatus, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.rows[id]
	if !ok || sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.UpdatedAt = time.Now().UTC()
	for key, val := range updates {
		switch key {
		case "retry_count":
			sub.RetryCount = val.(int)
		case "last_error":
			sub.LastError = val.(string)
		case "final_result":
			sub.FinalResult = val.(datatypes.JSON)
		case "completed_at":
			t := val.(time.Time)
			sub.CompletedAt = &t
		}
	}
	return true, nil
}

func (f *fakeSubs) ListRunnable(dbc dbctx.Context, staleCutoff time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, sub := range f.rows {
		if sub.Status == types.StatusScoring {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeQuestions struct {
	byID map[uuid.UUID]*types.Question
}

func newFakeQuestions(questions ...*types.Question) *fakeQuestions {
	f := &fakeQuestions{byID: map[uuid.UUID]*types.Question{}}
	for _, q := range questions {
		f.byID[q.ID] = q
	}
	return f
}

func (f *fakeQuestions) Create(dbc dbctx.Context, questions []*types.Question) error { return nil }

func (f *fakeQuestions) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Question, error) {
	var out []*types.Question
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if q, ok := f.byID[id]; ok && !seen[id] {
			out = append(out, q)
			seen[id] = true
		}
	}
	return out, nil
}

func (f *fakeQuestions) ListBySubject(dbc dbctx.Context, subject string) ([]*types.Question, error) {
	return nil, nil
}

func (f *fakeQuestions) ListTopicStats(dbc dbctx.Context, subject string) ([]repos.TopicStat, error) {
	return nil, nil
}

type fakeLimiter struct {
	decision ratelimit.Decision
	// denials counts down: deny this many calls, then allow.
	denials int
}

func (f *fakeLimiter) Allow(ctx context.Context, userID uuid.UUID, action string) (ratelimit.Decision, error) {
	if f.denials > 0 {
		f.denials--
		return ratelimit.Decision{Allowed: false, RetryAfter: time.Millisecond}, nil
	}
	if f.decision == (ratelimit.Decision{}) {
		return ratelimit.Decision{Allowed: true}, nil
	}
	return f.decision, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []types.SubmissionStatus
}

func (f *fakeNotifier) SubmissionStatus(ctx context.Context, submissionID, userID uuid.UUID, status types.SubmissionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, status)
}

// fakeCache is an in-memory cache.Client. Leases always succeed.
type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{values: map[string]string{}} }

func (f *fakeCache) GetString(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeCache) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeCache) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key] == value, nil
}

func (f *fakeCache) WindowTake(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (bool, time.Duration, error) {
	return true, 0, nil
}

func (f *fakeCache) Publish(ctx context.Context, channel, payload string) error { return nil }
func (f *fakeCache) Close() error                                               { return nil }

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func seedQuestion(subject, topic, answer string) *types.Question {
	return &types.Question{
		ID:            uuid.New(),
		Subject:       subject,
		Topic:         topic,
		Difficulty:    2,
		Prompt:        "prompt",
		AnswerKind:    types.AnswerKindText,
		CorrectAnswer: answer,
	}
}

func newTestService(t *testing.T, subs *fakeSubs, questions *fakeQuestions, limiter *fakeLimiter, c *fakeCache, notifier *fakeNotifier) Service {
	t.Helper()
	log := testLog(t)
	return NewService(log, subs, questions, scorer.NewScorer(log), limiter, c, notifier, nil)
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t, newFakeSubs(), newFakeQuestions(), &fakeLimiter{}, newFakeCache(), &fakeNotifier{})
	answer := []types.SubmittedAnswer{{QuestionID: uuid.New(), Answer: "x"}}

	cases := []struct {
		name    string
		userID  uuid.UUID
		subject string
		answers []types.SubmittedAnswer
	}{
		{"nil user", uuid.Nil, "math", answer},
		{"empty subject", uuid.New(), "", answer},
		{"no answers", uuid.New(), "math", nil},
		{"too many answers", uuid.New(), "math", make([]types.SubmittedAnswer, maxAnswersPerSubmission+1)},
	}
	for _, tc := range cases {
		if _, err := svc.Submit(context.Background(), tc.userID, tc.subject, tc.answers); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want invalid argument", tc.name, err)
		}
	}
}

func TestSubmitRateLimited(t *testing.T) {
	q := seedQuestion("math", "fractions", "3/4")
	svc := newTestService(t, newFakeSubs(), newFakeQuestions(q), &fakeLimiter{denials: 1}, newFakeCache(), &fakeNotifier{})

	_, err := svc.Submit(context.Background(), uuid.New(), "math", []types.SubmittedAnswer{{QuestionID: q.ID, Answer: "3/4"}})
	var lerr *ratelimit.LimitExceededError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want LimitExceededError", err)
	}
	if !errors.Is(err, pkgerrors.ErrRateLimited) {
		t.Fatal("rejection should match the rate-limited sentinel")
	}
	if lerr.RetryAfter <= 0 {
		t.Fatalf("retry hint %v should be positive", lerr.RetryAfter)
	}
}

func TestSubmitAcceptsAndQueues(t *testing.T) {
	q1 := seedQuestion("math", "fractions", "3/4")
	q2 := seedQuestion("math", "decimals", "0.75")
	subs := newFakeSubs()
	c := newFakeCache()
	notifier := &fakeNotifier{}
	svc := newTestService(t, subs, newFakeQuestions(q1, q2), &fakeLimiter{}, c, notifier)
	userID := uuid.New()

	ack, err := svc.Submit(context.Background(), userID, "math", []types.SubmittedAnswer{
		{QuestionID: q1.ID, Answer: "3/4"},
		{QuestionID: q2.ID, Answer: "0.5"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.Status != types.StatusScoring {
		t.Errorf("ack status = %s, want scoring", ack.Status)
	}
	if ack.QuickScore != 0.5 {
		t.Errorf("quick score = %v, want 0.5", ack.QuickScore)
	}

	stored, err := subs.GetByID(dbctx.Background(), ack.ID)
	if err != nil {
		t.Fatalf("stored submission: %v", err)
	}
	if stored.Status != types.StatusScoring {
		t.Errorf("stored status = %s, want scoring", stored.Status)
	}
	var answers []types.SubmittedAnswer
	if err := json.Unmarshal(stored.Answers, &answers); err != nil || len(answers) != 2 {
		t.Errorf("stored answers = %v, %v", answers, err)
	}

	if _, ok, _ := c.GetString(context.Background(), cache.SubmissionStatusKey(ack.ID)); !ok {
		t.Error("status mirror should be populated on accept")
	}
	if len(notifier.events) != 1 || notifier.events[0] != types.StatusScoring {
		t.Errorf("notifications = %v, want [scoring]", notifier.events)
	}
}

func TestSubmitRejectsForeignSubject(t *testing.T) {
	q := seedQuestion("history", "rome", "augustus")
	svc := newTestService(t, newFakeSubs(), newFakeQuestions(q), &fakeLimiter{}, newFakeCache(), &fakeNotifier{})

	_, err := svc.Submit(context.Background(), uuid.New(), "math", []types.SubmittedAnswer{{QuestionID: q.ID, Answer: "augustus"}})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestGetStatusOwnership(t *testing.T) {
	subs := newFakeSubs()
	c := newFakeCache()
	svc := newTestService(t, subs, newFakeQuestions(), &fakeLimiter{}, c, &fakeNotifier{})
	owner, stranger := uuid.New(), uuid.New()

	sub := &types.Submission{UserID: owner, Subject: "math", Status: types.StatusAIProcessing, Answers: datatypes.JSON(`[]`), RetryCount: 1}
	if err := subs.Create(dbctx.Background(), sub); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Cache miss path loads from the repo and repopulates the mirror.
	view, err := svc.GetStatus(context.Background(), owner, sub.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != types.StatusAIProcessing || view.RetryCount != 1 {
		t.Errorf("view = %+v", view)
	}
	if _, ok, _ := c.GetString(context.Background(), cache.SubmissionStatusKey(sub.ID)); !ok {
		t.Error("mirror should be repopulated on a miss")
	}

	// Cache hit path still enforces ownership.
	if _, err := svc.GetStatus(context.Background(), stranger, sub.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("stranger via cache: err = %v, want not found", err)
	}

	c.Delete(context.Background(), cache.SubmissionStatusKey(sub.ID))
	if _, err := svc.GetStatus(context.Background(), stranger, sub.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("stranger via repo: err = %v, want not found", err)
	}

	if _, err := svc.GetStatus(context.Background(), owner, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want not found", err)
	}
}

func TestGetResultWhileProcessing(t *testing.T) {
	subs := newFakeSubs()
	svc := newTestService(t, subs, newFakeQuestions(), &fakeLimiter{}, newFakeCache(), &fakeNotifier{})
	owner := uuid.New()

	sub := &types.Submission{UserID: owner, Subject: "math", Status: types.StatusAIProcessing, Answers: datatypes.JSON(`[]`), QuickScore: 0.8}
	if err := subs.Create(dbctx.Background(), sub); err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := svc.GetResult(context.Background(), owner, sub.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if view.Result != nil {
		t.Error("non-terminal submission should have no final result")
	}
	if view.QuickScore != 0.8 {
		t.Errorf("quick score = %v, want 0.8", view.QuickScore)
	}
}

func TestGetResultTerminal(t *testing.T) {
	subs := newFakeSubs()
	c := newFakeCache()
	svc := newTestService(t, subs, newFakeQuestions(), &fakeLimiter{}, c, &fakeNotifier{})
	owner := uuid.New()

	final := types.FinalResult{QuickScore: 0.4, Failed: true, FailureReason: "retries exhausted"}
	raw, _ := json.Marshal(final)
	now := time.Now().UTC()
	sub := &types.Submission{
		UserID: owner, Subject: "math", Status: types.StatusFailed,
		Answers: datatypes.JSON(`[]`), QuickScore: 0.4,
		FinalResult: datatypes.JSON(raw), CompletedAt: &now,
	}
	if err := subs.Create(dbctx.Background(), sub); err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := svc.GetResult(context.Background(), owner, sub.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if view.Result == nil || !view.Result.Failed {
		t.Fatalf("view = %+v, want failed result", view)
	}
	if view.Result.QuickScore != 0.4 {
		t.Errorf("failure should preserve the quick score, got %v", view.Result.QuickScore)
	}
	if _, ok, _ := c.GetString(context.Background(), cache.SubmissionResultKey(sub.ID)); !ok {
		t.Error("result mirror should be populated after a terminal read")
	}

	// Second read is served from the mirror without losing ownership checks.
	if _, err := svc.GetResult(context.Background(), uuid.New(), sub.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("stranger via cache: err = %v, want not found", err)
	}
}
