// Package services – RequestBroker
//
// RequestBroker drives the session request state machine:
//
//	pending --accept--> active (terminal)
//	pending --reject|cancel|expire--> ended (terminal)
//
// Every transition is a compare-and-swap on status guarded by the expiry
// deadline, so of two racing resolutions exactly one wins and the loser sees
// ErrRequestNotPending (or false for the idempotent reject/cancel). A request
// past its deadline reads as ended everywhere even before the sweeper
// persists it.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRequestTTL = 15 * time.Minute

// RequestBroker creates and resolves session requests.
type RequestBroker struct {
	DB        *gorm.DB
	Directory *Directory
	Notifier  Notifier
	Ledger    *MessageLedger
	Events    events.Publisher
	TTL       time.Duration
	Now       func() time.Time
}

// NewRequestBroker constructs a RequestBroker.
func NewRequestBroker(db *gorm.DB, dir *Directory, n Notifier, ledger *MessageLedger, pub events.Publisher, ttl time.Duration) *RequestBroker {
	return &RequestBroker{
		DB:        db,
		Directory: dir,
		Notifier:  n,
		Ledger:    ledger,
		Events:    pub,
		TTL:       ttl,
		Now:       utcNow,
	}
}

// Create opens a pending request. When nutritionistID is empty the
// Directory picks one. A user may hold one live pending request at a time;
// stale ones are expired first so they never block a new ask.
func (b *RequestBroker) Create(ctx context.Context, userID, nutritionistID, initialQuery string) (*domain.SessionRequest, error) {
	ctx, span := otel.Tracer("services/RequestBroker").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	query := normalizeContent(initialQuery)
	if b.Ledger != nil && b.Ledger.MaxMessageRunes > 0 && utf8.RuneCountInString(query) > b.Ledger.MaxMessageRunes {
		return nil, ErrQueryTooLong
	}

	var target *domain.NutritionistProfile
	var err error
	if nid := strings.TrimSpace(nutritionistID); nid != "" {
		target, err = b.Directory.Get(ctx, nid)
	} else {
		target, err = b.Directory.Pick(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	now := b.now()
	if _, err := repo.ExpireStaleRequests(ctx, b.DB, userID, now); err != nil {
		return nil, storage(err, ErrRequestNotFound)
	}

	req := &domain.SessionRequest{
		ID:                      uuid.NewString(),
		UserID:                  userID,
		RequestedNutritionistID: &target.ID,
		Status:                  domain.RequestPending,
		CreatedAt:               now,
		ExpiresAt:               now.Add(b.ttl()),
	}
	if query != "" {
		req.InitialQuery = &query
	}
	if err := repo.CreateRequest(ctx, b.DB, req); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrPendingRequestExists
		}
		return nil, storage(err, ErrRequestNotFound)
	}
	span.SetAttributes(attribute.String("request.id", req.ID), attribute.String("nutritionist.id", target.ID))
	transitions.WithLabelValues("request", "created").Inc()

	msg := "New session request"
	if query != "" {
		msg += ": " + Preview(query, b.previewRunes())
	}
	if b.Notifier != nil {
		b.Notifier.TryNotify(ctx, target.ID, domain.RoleNutritionist, domain.NotifySessionRequest, msg, req.ID)
	}
	publish(ctx, b.Events, events.Event{
		Type:           events.SessionRequested,
		Key:            req.ID,
		RequestID:      req.ID,
		UserID:         userID,
		NutritionistID: target.ID,
		Actor:          userID,
		OccurredAt:     now,
	})
	return req, nil
}

// Accept resolves a pending request into an active session. The status swap,
// the session insert and the seeded first message share one transaction: if
// the user already has an active session everything rolls back, the request
// stays pending and ErrUserHasActiveSession is returned.
func (b *RequestBroker) Accept(ctx context.Context, requestID, nutritionistID string) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/RequestBroker").Start(ctx, "Accept",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("nutritionist.id", nutritionistID),
		),
	)
	defer span.End()

	req, err := b.loadForNutritionist(ctx, requestID, nutritionistID)
	if err != nil {
		return nil, err
	}
	now := b.now()
	if req.EffectiveStatus(now) != domain.RequestPending {
		return nil, ErrRequestNotPending
	}

	var (
		sess   *domain.ChatSession
		seeded *domain.ChatMessage
	)
	err = b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The swap is the first statement so the write lock is taken before
		// anything is read inside the transaction.
		ok, err := repo.ResolveRequest(ctx, tx, req.ID, domain.RequestActive, domain.ResolutionAccepted, nutritionistID, now)
		if err != nil {
			return storage(err, ErrRequestNotFound)
		}
		if !ok {
			return ErrRequestNotPending
		}
		sess, err = insertSession(ctx, tx, req.UserID, nutritionistID, req.ID, now)
		if err != nil {
			return err
		}
		if req.InitialQuery != nil && strings.TrimSpace(*req.InitialQuery) != "" {
			seeded = &domain.ChatMessage{
				ID:        uuid.NewString(),
				SessionID: sess.ID,
				Content:   *req.InitialQuery,
				Sender:    domain.RoleUser,
				SenderID:  req.UserID,
				Timestamp: req.CreatedAt,
			}
			return appendMessage(ctx, tx, seeded)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	transitions.WithLabelValues("request", "accepted").Inc()
	transitions.WithLabelValues("session", "started").Inc()
	if b.Notifier != nil {
		b.Notifier.TryNotify(ctx, req.UserID, domain.RoleUser, domain.NotifySessionAccepted,
			"Your session request was accepted.", sess.ID)
	}
	if seeded != nil && b.Ledger != nil {
		b.Ledger.afterAppend(ctx, sess, seeded)
	}
	publish(ctx, b.Events, events.Event{
		Type:           events.RequestAccepted,
		Key:            sess.ID,
		RequestID:      req.ID,
		SessionID:      sess.ID,
		UserID:         req.UserID,
		NutritionistID: nutritionistID,
		Actor:          nutritionistID,
		OccurredAt:     now,
	})
	return sess, nil
}

// Reject resolves a pending request without a session. It returns false,
// with no error, when the request was already resolved or has expired.
func (b *RequestBroker) Reject(ctx context.Context, requestID, nutritionistID string) (bool, error) {
	req, err := b.loadForNutritionist(ctx, requestID, nutritionistID)
	if err != nil {
		return false, err
	}
	now := b.now()
	ok, err := repo.ResolveRequest(ctx, b.DB, req.ID, domain.RequestEnded, domain.ResolutionRejected, nutritionistID, now)
	if err != nil {
		return false, storage(err, ErrRequestNotFound)
	}
	if !ok {
		return false, nil
	}
	transitions.WithLabelValues("request", "rejected").Inc()
	if b.Notifier != nil {
		b.Notifier.TryNotify(ctx, req.UserID, domain.RoleUser, domain.NotifySessionRejected,
			"Your session request was declined.", req.ID)
	}
	publish(ctx, b.Events, events.Event{
		Type:           events.RequestRejected,
		Key:            req.ID,
		RequestID:      req.ID,
		UserID:         req.UserID,
		NutritionistID: nutritionistID,
		Actor:          nutritionistID,
		OccurredAt:     now,
	})
	return true, nil
}

// Cancel lets the requesting user withdraw a pending request. Like Reject it
// is idempotent.
func (b *RequestBroker) Cancel(ctx context.Context, requestID, userID string) (bool, error) {
	req, err := repo.GetRequest(ctx, b.DB, requestID)
	if err != nil {
		return false, storage(err, ErrRequestNotFound)
	}
	if req.UserID != userID {
		return false, ErrNotRequestOwner
	}
	now := b.now()
	ok, err := repo.ResolveRequest(ctx, b.DB, req.ID, domain.RequestEnded, domain.ResolutionCancelled, userID, now)
	if err != nil {
		return false, storage(err, ErrRequestNotFound)
	}
	if !ok {
		return false, nil
	}
	transitions.WithLabelValues("request", "cancelled").Inc()
	publish(ctx, b.Events, events.Event{
		Type:       events.RequestCancelled,
		Key:        req.ID,
		RequestID:  req.ID,
		UserID:     userID,
		Actor:      userID,
		OccurredAt: now,
	})
	return true, nil
}

// ExpireStale persists the expiry of every overdue pending request and
// returns how many were ended.
func (b *RequestBroker) ExpireStale(ctx context.Context) (int64, error) {
	n, err := repo.ExpireStaleRequests(ctx, b.DB, "", b.now())
	if err != nil {
		return 0, storage(err, ErrRequestNotFound)
	}
	if n > 0 {
		transitions.WithLabelValues("request", "expired").Add(float64(n))
	}
	return n, nil
}

// Get returns a request with its effective status.
func (b *RequestBroker) Get(ctx context.Context, id string) (*domain.SessionRequest, error) {
	req, err := repo.GetRequest(ctx, b.DB, id)
	if err != nil {
		return nil, storage(err, ErrRequestNotFound)
	}
	b.applyExpiry(req)
	return req, nil
}

// ListForUser returns the user's requests, newest first, with effective
// statuses.
func (b *RequestBroker) ListForUser(ctx context.Context, userID string) ([]domain.SessionRequest, error) {
	out, err := repo.ListRequestsForUser(ctx, b.DB, userID)
	if err != nil {
		return nil, storage(err, ErrRequestNotFound)
	}
	for i := range out {
		b.applyExpiry(&out[i])
	}
	return out, nil
}

// ListPendingForNutritionist returns live pending requests addressed to the
// nutritionist, oldest first.
func (b *RequestBroker) ListPendingForNutritionist(ctx context.Context, nutritionistID string) ([]domain.SessionRequest, error) {
	out, err := repo.ListPendingRequestsForNutritionist(ctx, b.DB, nutritionistID, b.now())
	if err != nil {
		return nil, storage(err, ErrRequestNotFound)
	}
	return out, nil
}

func (b *RequestBroker) loadForNutritionist(ctx context.Context, requestID, nutritionistID string) (*domain.SessionRequest, error) {
	req, err := repo.GetRequest(ctx, b.DB, requestID)
	if err != nil {
		return nil, storage(err, ErrRequestNotFound)
	}
	if req.RequestedNutritionistID != nil && *req.RequestedNutritionistID != nutritionistID {
		return nil, ErrNotRequestTarget
	}
	if _, err := repo.GetNutritionist(ctx, b.DB, nutritionistID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNutritionistNotFound
		}
		return nil, storage(err, ErrNutritionistNotFound)
	}
	return req, nil
}

// applyExpiry rewrites an overdue pending request as expired in memory.
func (b *RequestBroker) applyExpiry(r *domain.SessionRequest) {
	if r.EffectiveStatus(b.now()) == r.Status {
		return
	}
	r.Status = domain.RequestEnded
	res := domain.ResolutionExpired
	r.Resolution = &res
}

func (b *RequestBroker) ttl() time.Duration {
	if b.TTL > 0 {
		return b.TTL
	}
	return defaultRequestTTL
}

func (b *RequestBroker) previewRunes() int {
	if b.Ledger != nil {
		return b.Ledger.previewRunes()
	}
	return defaultPreviewRunes
}

func (b *RequestBroker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return utcNow()
}
