package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

func TestCreateSession_OneActivePerUser(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSession(t, db, "s1", "u1", "n1", domain.SessionActive)
	err := CreateSession(ctx, db, &domain.ChatSession{ID: "s2", UserID: "u1", NutritionistID: "n2", Status: domain.SessionActive, StartedAt: now})
	if !IsDuplicate(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// Ended sessions do not count.
	ok, err := EndSession(ctx, db, "s1", domain.RoleUser, now)
	if err != nil || !ok {
		t.Fatalf("end: ok=%v err=%v", ok, err)
	}
	if err := CreateSession(ctx, db, &domain.ChatSession{ID: "s3", UserID: "u1", NutritionistID: "n2", Status: domain.SessionActive, StartedAt: now}); err != nil {
		t.Fatalf("create after end: %v", err)
	}
}

func TestEndSession_TrueThenFalse(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedSession(t, db, "s1", "u1", "n1", domain.SessionActive)

	now := time.Now().UTC()
	ok, err := EndSession(ctx, db, "s1", domain.RoleNutritionist, now)
	if err != nil || !ok {
		t.Fatalf("first end: ok=%v err=%v", ok, err)
	}
	ok, err = EndSession(ctx, db, "s1", domain.RoleUser, now)
	if err != nil || ok {
		t.Fatalf("second end: ok=%v err=%v", ok, err)
	}
	got, _ := GetSession(ctx, db, "s1")
	if got.Status != domain.SessionEnded || got.EndedAt == nil || got.EndedBy == nil || *got.EndedBy != domain.RoleNutritionist {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSessionQueries(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	seedSession(t, db, "s1", "u1", "n1", domain.SessionActive)
	seedSession(t, db, "s2", "u2", "n1", domain.SessionEnded)
	seedSession(t, db, "s3", "u2", "n2", domain.SessionEnded)

	active, err := ActiveSessionForUser(ctx, db, "u1")
	if err != nil || active.ID != "s1" {
		t.Fatalf("active for u1: %v %+v", err, active)
	}
	if _, err := ActiveSessionForUser(ctx, db, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for u2, got %v", err)
	}

	all, err := ListSessionsForNutritionist(ctx, db, "n1", false)
	if err != nil || len(all) != 2 {
		t.Fatalf("list n1: %v len=%d", err, len(all))
	}
	onlyActive, err := ListSessionsForNutritionist(ctx, db, "n1", true)
	if err != nil || len(onlyActive) != 1 || onlyActive[0].ID != "s1" {
		t.Fatalf("list active n1: %v %+v", err, onlyActive)
	}
	mine, err := ListSessionsForUser(ctx, db, "u2")
	if err != nil || len(mine) != 2 {
		t.Fatalf("list u2: %v len=%d", err, len(mine))
	}

	busy, err := NutritionistHasActiveSession(ctx, db, "n1")
	if err != nil || !busy {
		t.Fatalf("n1 should be busy: %v %v", busy, err)
	}
	busy, err = NutritionistHasActiveSession(ctx, db, "n2")
	if err != nil || busy {
		t.Fatalf("n2 should not be busy: %v %v", busy, err)
	}

	set, err := BusyNutritionistIDs(ctx, db)
	if err != nil || len(set) != 1 {
		t.Fatalf("busy set: %v %v", set, err)
	}
	if _, ok := set["n1"]; !ok {
		t.Fatalf("n1 missing from busy set: %v", set)
	}
}
