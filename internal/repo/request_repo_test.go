package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

func newPending(id, userID, nutritionistID string, created time.Time, ttl time.Duration) *domain.SessionRequest {
	n := nutritionistID
	return &domain.SessionRequest{
		ID:                      id,
		UserID:                  userID,
		RequestedNutritionistID: &n,
		Status:                  domain.RequestPending,
		CreatedAt:               created,
		ExpiresAt:               created.Add(ttl),
	}
}

func TestCreateRequest_OnePendingPerUser(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := CreateRequest(ctx, db, newPending("r1", "u1", "n1", now, time.Hour)); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	err := CreateRequest(ctx, db, newPending("r2", "u1", "n2", now, time.Hour))
	if !IsDuplicate(err) {
		t.Fatalf("expected duplicate for second pending, got %v", err)
	}
	// Another user is unaffected.
	if err := CreateRequest(ctx, db, newPending("r3", "u2", "n1", now, time.Hour)); err != nil {
		t.Fatalf("create r3: %v", err)
	}

	// Once resolved, the user may ask again.
	ok, err := ResolveRequest(ctx, db, "r1", domain.RequestEnded, domain.ResolutionCancelled, "u1", now)
	if err != nil || !ok {
		t.Fatalf("resolve r1: ok=%v err=%v", ok, err)
	}
	if err := CreateRequest(ctx, db, newPending("r4", "u1", "n1", now, time.Hour)); err != nil {
		t.Fatalf("create r4 after resolve: %v", err)
	}
}

func TestResolveRequest_CAS(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = CreateRequest(ctx, db, newPending("r1", "u1", "n1", now, time.Hour))

	ok, err := ResolveRequest(ctx, db, "r1", domain.RequestActive, domain.ResolutionAccepted, "n1", now)
	if err != nil || !ok {
		t.Fatalf("first resolve: ok=%v err=%v", ok, err)
	}
	ok, err = ResolveRequest(ctx, db, "r1", domain.RequestEnded, domain.ResolutionRejected, "n1", now)
	if err != nil || ok {
		t.Fatalf("second resolve must lose: ok=%v err=%v", ok, err)
	}
	got, _ := GetRequest(ctx, db, "r1")
	if got.Status != domain.RequestActive || got.Resolution == nil || *got.Resolution != domain.ResolutionAccepted {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ResolvedBy == nil || *got.ResolvedBy != "n1" || got.ResolvedAt == nil {
		t.Fatalf("resolution metadata missing: %+v", got)
	}

	ok, err = ResolveRequest(ctx, db, "missing", domain.RequestActive, domain.ResolutionAccepted, "n1", now)
	if err != nil || ok {
		t.Fatalf("missing row: ok=%v err=%v", ok, err)
	}
}

func TestResolveRequest_ExpiredLoses(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-2 * time.Hour)
	_ = CreateRequest(ctx, db, newPending("r1", "u1", "n1", created, time.Hour))

	ok, err := ResolveRequest(ctx, db, "r1", domain.RequestActive, domain.ResolutionAccepted, "n1", time.Now().UTC())
	if err != nil || ok {
		t.Fatalf("expired request must not resolve: ok=%v err=%v", ok, err)
	}
}

func TestResolveRequest_ConcurrentSingleWinner(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = CreateRequest(ctx, db, newPending("r1", "u1", "n1", now, time.Hour))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ResolveRequest(ctx, db, "r1", domain.RequestActive, domain.ResolutionAccepted, "n1", now)
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestExpireStaleRequests(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-2 * time.Hour)

	_ = CreateRequest(ctx, db, newPending("r1", "u1", "n1", old, time.Hour))
	_ = CreateRequest(ctx, db, newPending("r2", "u2", "n1", old, time.Hour))
	_ = CreateRequest(ctx, db, newPending("r3", "u3", "n1", now, time.Hour))

	n, err := ExpireStaleRequests(ctx, db, "u1", now)
	if err != nil || n != 1 {
		t.Fatalf("user-scoped expire: n=%d err=%v", n, err)
	}
	n, err = ExpireStaleRequests(ctx, db, "", now)
	if err != nil || n != 1 {
		t.Fatalf("global expire: n=%d err=%v", n, err)
	}
	got, _ := GetRequest(ctx, db, "r2")
	if got.Status != domain.RequestEnded || got.Resolution == nil || *got.Resolution != domain.ResolutionExpired {
		t.Fatalf("r2 not expired: %+v", got)
	}
	if got.ResolvedBy == nil || *got.ResolvedBy != SystemActor {
		t.Fatalf("expected system resolver, got %+v", got.ResolvedBy)
	}
	fresh, _ := GetRequest(ctx, db, "r3")
	if fresh.Status != domain.RequestPending {
		t.Fatalf("fresh request touched: %+v", fresh)
	}
}

func TestListRequests(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = CreateRequest(ctx, db, newPending("r1", "u1", "n1", now.Add(-3*time.Minute), time.Hour))
	_, _ = ResolveRequest(ctx, db, "r1", domain.RequestEnded, domain.ResolutionRejected, "n1", now)
	_ = CreateRequest(ctx, db, newPending("r2", "u1", "n1", now.Add(-time.Minute), time.Hour))
	_ = CreateRequest(ctx, db, newPending("r3", "u2", "n1", now.Add(-2*time.Minute), time.Hour))
	_ = CreateRequest(ctx, db, newPending("r4", "u3", "n2", now, time.Hour))
	_ = CreateRequest(ctx, db, newPending("r5", "u4", "n1", now.Add(-3*time.Hour), time.Hour)) // expired

	mine, err := ListRequestsForUser(ctx, db, "u1")
	if err != nil || len(mine) != 2 || mine[0].ID != "r2" || mine[1].ID != "r1" {
		t.Fatalf("user list newest first: err=%v got=%+v", err, mine)
	}

	pending, err := ListPendingRequestsForNutritionist(ctx, db, "n1", now)
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "r3" || pending[1].ID != "r2" {
		t.Fatalf("expected r3,r2 oldest first, got %+v", pending)
	}

	if _, err := GetRequest(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
