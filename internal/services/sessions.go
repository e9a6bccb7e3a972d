// Package services – SessionStore
//
// SessionStore is the authority on chat sessions. At most one active session
// per user is guaranteed by a partial unique index, so two concurrent
// creations for one user cannot both succeed. Creating a session while one is
// already active fails with ErrUserHasActiveSession; the accept path of the
// request broker applies the same rule.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionStore creates, reads and ends chat sessions.
type SessionStore struct {
	DB       *gorm.DB
	Notifier Notifier
	Events   events.Publisher
	Now      func() time.Time
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(db *gorm.DB, n Notifier, pub events.Publisher) *SessionStore {
	return &SessionStore{DB: db, Notifier: n, Events: pub, Now: utcNow}
}

// Create opens an active session between the user and the nutritionist.
func (s *SessionStore) Create(ctx context.Context, userID, nutritionistID, requestID string) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionStore").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("nutritionist.id", nutritionistID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}
	if _, err := repo.GetNutritionist(ctx, s.DB, nutritionistID); err != nil {
		return nil, storage(err, ErrNutritionistNotFound)
	}
	sess, err := insertSession(ctx, s.DB, userID, nutritionistID, requestID, s.now())
	if err != nil {
		return nil, err
	}
	transitions.WithLabelValues("session", "started").Inc()
	return sess, nil
}

// insertSession writes an active session on db, which may be a transaction.
func insertSession(ctx context.Context, db *gorm.DB, userID, nutritionistID, requestID string, now time.Time) (*domain.ChatSession, error) {
	sess := &domain.ChatSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		NutritionistID: nutritionistID,
		Status:         domain.SessionActive,
		StartedAt:      now,
		CreatedAt:      now,
	}
	if requestID != "" {
		sess.RequestID = &requestID
	}
	if err := repo.CreateSession(ctx, db, sess); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrUserHasActiveSession
		}
		return nil, storage(err, ErrSessionNotFound)
	}
	return sess, nil
}

// Get returns a session or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		return nil, storage(err, ErrSessionNotFound)
	}
	return sess, nil
}

// ActiveForUser returns the user's active session or ErrSessionNotFound.
func (s *SessionStore) ActiveForUser(ctx context.Context, userID string) (*domain.ChatSession, error) {
	sess, err := repo.ActiveSessionForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, storage(err, ErrSessionNotFound)
	}
	return sess, nil
}

// ListForNutritionist returns all of the nutritionist's sessions.
func (s *SessionStore) ListForNutritionist(ctx context.Context, nutritionistID string) ([]domain.ChatSession, error) {
	out, err := repo.ListSessionsForNutritionist(ctx, s.DB, nutritionistID, false)
	return out, storage(err, ErrSessionNotFound)
}

// ListActiveForNutritionist returns the nutritionist's active sessions.
func (s *SessionStore) ListActiveForNutritionist(ctx context.Context, nutritionistID string) ([]domain.ChatSession, error) {
	out, err := repo.ListSessionsForNutritionist(ctx, s.DB, nutritionistID, true)
	return out, storage(err, ErrSessionNotFound)
}

// ListForUser returns the user's sessions, newest first.
func (s *SessionStore) ListForUser(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	out, err := repo.ListSessionsForUser(ctx, s.DB, userID)
	return out, storage(err, ErrSessionNotFound)
}

// End closes the session on behalf of the participant holding endedBy. The
// first call returns true; later calls return false and change nothing. Only
// the other party is notified. An empty actorID skips the participant check.
func (s *SessionStore) End(ctx context.Context, sessionID string, endedBy domain.Role, actorID string) (bool, error) {
	ctx, span := otel.Tracer("services/SessionStore").Start(ctx, "End",
		trace.WithAttributes(
			attribute.String("chat.session.id", sessionID),
			attribute.String("ended_by", string(endedBy)),
		),
	)
	defer span.End()

	if !endedBy.Valid() {
		return false, ErrInvalidRole
	}
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return false, storage(err, ErrSessionNotFound)
	}
	if actorID != "" && sess.Participant(endedBy) != actorID {
		return false, ErrNotParticipant
	}

	now := s.now()
	ok, err := repo.EndSession(ctx, s.DB, sessionID, endedBy, now)
	if err != nil {
		return false, storage(err, ErrSessionNotFound)
	}
	if !ok {
		return false, nil
	}
	transitions.WithLabelValues("session", "ended").Inc()

	other := endedBy.Other()
	if s.Notifier != nil {
		s.Notifier.TryNotify(ctx, sess.Participant(other), other, domain.NotifySessionEnded,
			"Your session was ended by the "+string(endedBy)+".", sess.ID)
	}
	publish(ctx, s.Events, events.Event{
		Type:           events.SessionEnded,
		Key:            sess.ID,
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		NutritionistID: sess.NutritionistID,
		Actor:          string(endedBy),
		OccurredAt:     now,
	})
	return true, nil
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utcNow()
}
