package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/skillforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/skillforge-backend/internal/domain"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
)

func TestSubmissionCreateAndGet(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	sub := &types.Submission{
		UserID:     uuid.New(),
		Subject:    "math",
		Answers:    datatypes.JSON([]byte(`[{"question_id":"` + uuid.New().String() + `","answer":"42"}]`)),
		Status:     types.StatusPending,
		QuickScore: 0.75,
	}
	if err := repo.Create(dbc, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == uuid.Nil {
		t.Fatal("Create should assign an id")
	}

	got, err := repo.GetByID(dbc, sub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusPending || got.QuickScore != 0.75 || got.Subject != "math" {
		t.Errorf("got = %+v", got)
	}

	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want not found", err)
	}
	if err := repo.Create(dbc, &types.Submission{Subject: "math"}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Errorf("nil user: err = %v, want invalid argument", err)
	}
}

func TestSubmissionTransitionGuard(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	sub := testutil.SeedSubmission(t, ctx, tx, uuid.New(), "math", types.StatusScoring)

	ok, err := repo.Transition(dbc, sub.ID, types.StatusScoring, types.StatusAIProcessing, nil)
	if err != nil || !ok {
		t.Fatalf("legal transition: ok=%v err=%v", ok, err)
	}

	// The row already moved on, so the same edge is a no-op, not an error.
	ok, err = repo.Transition(dbc, sub.ID, types.StatusScoring, types.StatusAIProcessing, nil)
	if err != nil {
		t.Fatalf("repeat transition: %v", err)
	}
	if ok {
		t.Fatal("repeat of a consumed transition should not apply")
	}

	// Edges outside the machine are refused before touching the row.
	if _, err := repo.Transition(dbc, sub.ID, types.StatusPending, types.StatusCompleted, nil); err == nil {
		t.Fatal("illegal edge should error")
	}
	if _, err := repo.Transition(dbc, sub.ID, types.StatusCompleted, types.StatusScoring, nil); err == nil {
		t.Fatal("terminal states have no outgoing edges")
	}
}

func TestSubmissionTransitionAppliesUpdates(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	sub := testutil.SeedSubmission(t, ctx, tx, uuid.New(), "math", types.StatusAIProcessing)
	now := time.Now().UTC()

	ok, err := repo.Transition(dbc, sub.ID, types.StatusAIProcessing, types.StatusFailed, map[string]interface{}{
		"final_result": datatypes.JSON([]byte(`{"quick_score":0.5,"failed":true}`)),
		"completed_at": now,
		"last_error":   "retries exhausted",
		"retry_count":  3,
	})
	if err != nil || !ok {
		t.Fatalf("transition: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, sub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusFailed || got.RetryCount != 3 || got.LastError != "retries exhausted" {
		t.Errorf("got = %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if len(got.FinalResult) == 0 {
		t.Error("final_result should be set")
	}
}

func TestSubmissionCompletionIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	sub := testutil.SeedSubmission(t, ctx, tx, uuid.New(), "math", types.StatusAIProcessing)

	first, err := repo.Transition(dbc, sub.ID, types.StatusAIProcessing, types.StatusCompleted, nil)
	if err != nil || !first {
		t.Fatalf("first completion: ok=%v err=%v", first, err)
	}
	// A racing duplicate worker applies nothing.
	second, err := repo.Transition(dbc, sub.ID, types.StatusAIProcessing, types.StatusCompleted, nil)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if second {
		t.Fatal("completion must apply exactly once")
	}
}

func TestSubmissionListRunnable(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()

	scored := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusScoring)
	fresh := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusAIProcessing)
	staleWorking := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusAIProcessing)
	stalePending := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusPending)
	testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusCompleted)

	// Age the stale rows past the cutoff.
	old := time.Now().UTC().Add(-time.Hour)
	for _, id := range []uuid.UUID{staleWorking.ID, stalePending.ID} {
		if err := tx.Model(&types.Submission{}).Where("id = ?", id).
			UpdateColumn("updated_at", old).Error; err != nil {
			t.Fatalf("age row: %v", err)
		}
	}

	cutoff := time.Now().UTC().Add(-10 * time.Minute)
	ids, err := repo.ListRunnable(dbc, cutoff, 50)
	if err != nil {
		t.Fatalf("ListRunnable: %v", err)
	}

	got := map[uuid.UUID]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got[scored.ID] {
		t.Error("freshly scored row should be runnable")
	}
	if !got[staleWorking.ID] {
		t.Error("stale ai_processing row should be reclaimed")
	}
	if !got[stalePending.ID] {
		t.Error("stranded pending row should be reclaimed")
	}
	if got[fresh.ID] {
		t.Error("fresh ai_processing row belongs to a live worker")
	}
	if len(ids) != 3 {
		t.Errorf("runnable = %d rows, want 3", len(ids))
	}
}

func TestSubmissionListRecentCompleted(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewSubmissionRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()

	older := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusCompleted)
	newer := testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusCompleted)
	testutil.SeedSubmission(t, ctx, tx, userID, "history", types.StatusCompleted)
	testutil.SeedSubmission(t, ctx, tx, userID, "math", types.StatusScoring)
	testutil.SeedSubmission(t, ctx, tx, uuid.New(), "math", types.StatusCompleted)

	if err := tx.Model(&types.Submission{}).Where("id = ?", older.ID).
		UpdateColumn("completed_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	subs, err := repo.ListRecentCompleted(dbc, userID, "math", 10)
	if err != nil {
		t.Fatalf("ListRecentCompleted: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("rows = %d, want 2", len(subs))
	}
	if subs[0].ID != newer.ID || subs[1].ID != older.ID {
		t.Errorf("order = %s, %s; want newest first", subs[0].ID, subs[1].ID)
	}

	limited, err := repo.ListRecentCompleted(dbc, userID, "math", 1)
	if err != nil {
		t.Fatalf("ListRecentCompleted limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Errorf("limited = %v", limited)
	}
}
