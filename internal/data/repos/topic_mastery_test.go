package repos

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/skillforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/skillforge-backend/internal/pkg/errors"
)

func TestTopicMasteryRecordAttemptUpserts(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewTopicMasteryRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()
	now := time.Now().UTC()
	const alpha = 0.3

	if err := repo.RecordAttempt(dbc, userID, "math", "fractions", true, 1, alpha, now); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := repo.RecordAttempt(dbc, userID, "math", "fractions", false, 0, alpha, now.Add(time.Minute)); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	rows, err := repo.ListByUserSubject(dbc, userID, "math")
	if err != nil {
		t.Fatalf("ListByUserSubject: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want a single upserted row", len(rows))
	}
	row := rows[0]
	if row.TotalAttempts != 2 || row.CorrectAttempts != 1 {
		t.Errorf("attempts = %d/%d, want 1/2", row.CorrectAttempts, row.TotalAttempts)
	}
	// EMA after a perfect then a failed attempt: 0.3*0 + 0.7*1.
	if math.Abs(row.AverageScore-0.7) > 1e-9 {
		t.Errorf("average = %v, want 0.7", row.AverageScore)
	}
	if !row.LastActivity.After(now) {
		t.Errorf("last activity = %v, should advance with each attempt", row.LastActivity)
	}
}

func TestTopicMasteryListScopes(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := NewTopicMasteryRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()
	now := time.Now().UTC()

	if err := repo.RecordAttempt(dbc, userID, "math", "fractions", true, 1, 0.3, now.Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.RecordAttempt(dbc, userID, "history", "rome", true, 1, 0.3, now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.RecordAttempt(dbc, uuid.New(), "math", "fractions", true, 1, 0.3, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	all, err := repo.ListByUser(dbc, userID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("rows = %d, want 2", len(all))
	}
	// Most recently practiced first.
	if all[0].Topic != "rome" {
		t.Errorf("order = %s first, want rome", all[0].Topic)
	}

	scoped, err := repo.ListByUserSubject(dbc, userID, "math")
	if err != nil {
		t.Fatalf("ListByUserSubject: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Topic != "fractions" {
		t.Errorf("scoped = %v", scoped)
	}
}

func TestTopicMasteryValidation(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := NewTopicMasteryRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	now := time.Now().UTC()

	if err := repo.RecordAttempt(dbc, uuid.Nil, "math", "fractions", true, 1, 0.3, now); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Errorf("nil user: err = %v", err)
	}
	if err := repo.RecordAttempt(dbc, uuid.New(), "math", "", true, 1, 0.3, now); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Errorf("empty topic: err = %v", err)
	}

	rows, err := repo.ListByUser(dbc, uuid.Nil)
	if err != nil || len(rows) != 0 {
		t.Errorf("nil user list = %v, %v", rows, err)
	}
}
