// Package services – NotificationDispatcher
//
// The dispatcher writes one notification per event per recipient and serves
// the recipient's inbox. Transitions call TryNotify after their own write is
// committed, so a failed notification never undoes the transition it
// describes.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier is the subset of the dispatcher the other services depend on.
type Notifier interface {
	TryNotify(ctx context.Context, recipientID string, recipientType domain.Role, typ domain.NotificationType, message, relatedEntityID string)
}

// NotificationDispatcher persists and serves notifications.
type NotificationDispatcher struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewNotificationDispatcher returns a dispatcher using wall-clock UTC time.
func NewNotificationDispatcher(db *gorm.DB) *NotificationDispatcher {
	return &NotificationDispatcher{DB: db, Now: utcNow}
}

// Notify writes a notification addressed to (recipientID, recipientType).
func (d *NotificationDispatcher) Notify(ctx context.Context, recipientID string, recipientType domain.Role, typ domain.NotificationType, message, relatedEntityID string) (*domain.ChatNotification, error) {
	ctx, span := otel.Tracer("services/NotificationDispatcher").Start(ctx, "Notify",
		trace.WithAttributes(
			attribute.String("notification.type", string(typ)),
			attribute.String("recipient.type", string(recipientType)),
		),
	)
	defer span.End()

	if strings.TrimSpace(recipientID) == "" || !recipientType.Valid() || !typ.Valid() {
		return nil, ErrInvalidNotification
	}
	n := &domain.ChatNotification{
		ID:            notificationID(),
		RecipientID:   recipientID,
		RecipientType: recipientType,
		Type:          typ,
		Message:       message,
		CreatedAt:     d.now(),
	}
	if relatedEntityID != "" {
		n.RelatedEntityID = &relatedEntityID
	}
	err := repo.CreateNotification(ctx, d.DB, n)
	notificationsSent.WithLabelValues(string(typ), outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, storage(err, ErrNotificationNotFound)
	}
	return n, nil
}

// TryNotify is Notify for best-effort callers: failures are logged and
// counted, never returned.
func (d *NotificationDispatcher) TryNotify(ctx context.Context, recipientID string, recipientType domain.Role, typ domain.NotificationType, message, relatedEntityID string) {
	if _, err := d.Notify(ctx, recipientID, recipientType, typ, message, relatedEntityID); err != nil {
		log.Warn().Err(err).
			Str("type", string(typ)).
			Str("recipient_type", string(recipientType)).
			Msg("notification dropped")
	}
}

// ListFor returns the recipient's notifications, newest first.
func (d *NotificationDispatcher) ListFor(ctx context.Context, recipientID string, recipientType domain.Role, unreadOnly bool) ([]domain.ChatNotification, error) {
	if !recipientType.Valid() {
		return nil, ErrInvalidRole
	}
	out, err := repo.ListNotifications(ctx, d.DB, recipientID, recipientType, unreadOnly, 0)
	if err != nil {
		return nil, storage(err, ErrNotificationNotFound)
	}
	return out, nil
}

// MarkRead flags the notification as read. It reports false when it was
// already read. A notification addressed to someone else reads as missing.
func (d *NotificationDispatcher) MarkRead(ctx context.Context, notificationID, recipientID string, recipientType domain.Role) (bool, error) {
	n, err := repo.GetNotification(ctx, d.DB, notificationID)
	if err != nil {
		return false, storage(err, ErrNotificationNotFound)
	}
	if n.RecipientID != recipientID || n.RecipientType != recipientType {
		return false, ErrNotificationNotFound
	}
	if n.Read {
		return false, nil
	}
	ok, err := repo.MarkNotificationRead(ctx, d.DB, notificationID)
	if err != nil {
		return false, storage(err, ErrNotificationNotFound)
	}
	return ok, nil
}

// MarkAllRead flags every unread notification of the recipient.
func (d *NotificationDispatcher) MarkAllRead(ctx context.Context, recipientID string, recipientType domain.Role) (int64, error) {
	if !recipientType.Valid() {
		return 0, ErrInvalidRole
	}
	n, err := repo.MarkAllNotificationsRead(ctx, d.DB, recipientID, recipientType)
	if err != nil {
		return 0, storage(err, ErrNotificationNotFound)
	}
	return n, nil
}

// UnreadCount returns the number of unread notifications.
func (d *NotificationDispatcher) UnreadCount(ctx context.Context, recipientID string, recipientType domain.Role) (int64, error) {
	n, err := repo.CountUnreadNotifications(ctx, d.DB, recipientID, recipientType)
	if err != nil {
		return 0, storage(err, ErrNotificationNotFound)
	}
	return n, nil
}

// Stats summarises the inbox for conditional GETs.
func (d *NotificationDispatcher) Stats(ctx context.Context, recipientID string, recipientType domain.Role) (repo.ListStats, error) {
	st, err := repo.NotificationsStats(ctx, d.DB, recipientID, recipientType)
	if err != nil {
		return st, storage(err, ErrNotificationNotFound)
	}
	return st, nil
}

// notificationID returns a UUIDv7. The ids grow with insertion order, so
// notifications written within the same clock tick still list newest first.
func notificationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (d *NotificationDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return utcNow()
}

func utcNow() time.Time { return time.Now().UTC() }
