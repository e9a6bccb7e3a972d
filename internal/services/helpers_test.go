package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/repo"
)

// ---------- test helpers ----------

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingNotifier drops everything, as if the notification store were down.
type failingNotifier struct{ calls int }

func (f *failingNotifier) TryNotify(context.Context, string, domain.Role, domain.NotificationType, string, string) {
	f.calls++
}

var errBroker = errors.New("broker down")

type fixture struct {
	db       *gorm.DB
	clock    *fakeClock
	pub      *recordingPublisher
	dir      *Directory
	notes    *NotificationDispatcher
	sessions *SessionStore
	ledger   *MessageLedger
	broker   *RequestBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newServiceDB(t)
	clock := newFakeClock()
	pub := &recordingPublisher{}

	notes := NewNotificationDispatcher(db)
	notes.Now = clock.Now
	dir := NewDirectory(db)
	sessions := NewSessionStore(db, notes, pub)
	sessions.Now = clock.Now
	ledger := NewMessageLedger(db, notes, pub, 50, 2000)
	ledger.Now = clock.Now
	broker := NewRequestBroker(db, dir, notes, ledger, pub, 15*time.Minute)
	broker.Now = clock.Now

	return &fixture{
		db:       db,
		clock:    clock,
		pub:      pub,
		dir:      dir,
		notes:    notes,
		sessions: sessions,
		ledger:   ledger,
		broker:   broker,
	}
}

func (f *fixture) onboard(t *testing.T, id, name string, available bool, specialties ...string) *domain.NutritionistProfile {
	t.Helper()
	p, err := f.dir.Onboard(context.Background(), domain.NutritionistProfile{
		ID:          id,
		Name:        name,
		Available:   available,
		Specialties: specialties,
	})
	if err != nil {
		t.Fatalf("onboard %s: %v", id, err)
	}
	return p
}

// startSession runs the full request/accept path and returns the session.
func (f *fixture) startSession(t *testing.T, userID, nutritionistID, query string) *domain.ChatSession {
	t.Helper()
	ctx := context.Background()
	req, err := f.broker.Create(ctx, userID, nutritionistID, query)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	sess, err := f.broker.Accept(ctx, req.ID, nutritionistID)
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}
	return sess
}

func (f *fixture) notificationsOf(t *testing.T, recipientID string, role domain.Role, typ domain.NotificationType) []domain.ChatNotification {
	t.Helper()
	all, err := f.notes.ListFor(context.Background(), recipientID, role, false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var out []domain.ChatNotification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (f *fixture) activeSessionsOf(t *testing.T, userID string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&domain.ChatSession{}).
		Where("user_id = ? AND status = ?", userID, domain.SessionActive).
		Count(&n).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}
