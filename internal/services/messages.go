// Package services – MessageLedger
//
// MessageLedger appends messages to active sessions and tracks read state.
// The active-status check and the insert are one SQL statement, so a send
// racing an end either lands before the end or is rejected with
// ErrSessionNotActive; it is never orphaned. Each successful append notifies
// the other participant with a short preview.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPreviewRunes = 50
	previewEllipsis     = "..."
)

// MessageLedger stores and serves chat messages.
type MessageLedger struct {
	DB       *gorm.DB
	Notifier Notifier
	Events   events.Publisher
	Now      func() time.Time

	PreviewRunes    int // notification preview budget, default 50
	MaxMessageRunes int // 0 disables the length check
}

// NewMessageLedger constructs a MessageLedger.
func NewMessageLedger(db *gorm.DB, n Notifier, pub events.Publisher, previewRunes, maxRunes int) *MessageLedger {
	return &MessageLedger{
		DB:              db,
		Notifier:        n,
		Events:          pub,
		Now:             utcNow,
		PreviewRunes:    previewRunes,
		MaxMessageRunes: maxRunes,
	}
}

// Append stores a message from sender in an active session.
func (l *MessageLedger) Append(ctx context.Context, sessionID, content string, sender domain.Role, senderID string) (*domain.ChatMessage, error) {
	ctx, span := otel.Tracer("services/MessageLedger").Start(ctx, "Append",
		trace.WithAttributes(
			attribute.String("chat.session.id", sessionID),
			attribute.String("sender", string(sender)),
		),
	)
	defer span.End()

	content = normalizeContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if l.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > l.MaxMessageRunes {
		return nil, ErrContentTooLong
	}
	if !sender.Valid() {
		return nil, ErrInvalidRole
	}

	sess, err := repo.GetSession(ctx, l.DB, sessionID)
	if err != nil {
		return nil, storage(err, ErrSessionNotFound)
	}
	if sess.Participant(sender) != senderID {
		return nil, ErrNotParticipant
	}
	if sess.Status != domain.SessionActive {
		return nil, ErrSessionNotActive
	}

	m := &domain.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Sender:    sender,
		SenderID:  senderID,
		Timestamp: l.now(),
	}
	if err := appendMessage(ctx, l.DB, m); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.seq", m.Seq))
	l.afterAppend(ctx, sess, m)
	return m, nil
}

// appendMessage runs the conditional insert on db, which may be a transaction.
func appendMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) error {
	ok, err := repo.AppendMessage(ctx, db, m)
	if err != nil {
		return storage(err, ErrSessionNotFound)
	}
	if !ok {
		return ErrSessionNotActive
	}
	return nil
}

// afterAppend sends the single new_message notification to the other
// participant and publishes the domain event.
func (l *MessageLedger) afterAppend(ctx context.Context, sess *domain.ChatSession, m *domain.ChatMessage) {
	other := m.Sender.Other()
	if l.Notifier != nil {
		l.Notifier.TryNotify(ctx, sess.Participant(other), other, domain.NotifyNewMessage,
			Preview(m.Content, l.previewRunes()), sess.ID)
	}
	publish(ctx, l.Events, events.Event{
		Type:           events.MessageAppended,
		Key:            sess.ID,
		SessionID:      sess.ID,
		MessageID:      m.ID,
		UserID:         sess.UserID,
		NutritionistID: sess.NutritionistID,
		Actor:          string(m.Sender),
		OccurredAt:     m.Timestamp,
	})
}

// List returns the session's messages in timestamp order, ties broken by
// insertion. Only messages with a sequence above afterSeq are returned.
func (l *MessageLedger) List(ctx context.Context, sessionID string, afterSeq int64) ([]domain.ChatMessage, error) {
	if _, err := repo.GetSession(ctx, l.DB, sessionID); err != nil {
		return nil, storage(err, ErrSessionNotFound)
	}
	out, err := repo.ListMessages(ctx, l.DB, sessionID, afterSeq)
	if err != nil {
		return nil, storage(err, ErrSessionNotFound)
	}
	return out, nil
}

// MarkRead flags a message as read by its recipient. It reports false when
// the message was already read. An empty readerID skips the recipient check.
func (l *MessageLedger) MarkRead(ctx context.Context, messageID, readerID string) (bool, error) {
	m, err := repo.GetMessage(ctx, l.DB, messageID)
	if err != nil {
		return false, storage(err, ErrMessageNotFound)
	}
	if readerID != "" {
		sess, err := repo.GetSession(ctx, l.DB, m.SessionID)
		if err != nil {
			return false, storage(err, ErrMessageNotFound)
		}
		if sess.Participant(m.Sender.Other()) != readerID {
			return false, ErrNotParticipant
		}
	}
	if m.Read {
		return false, nil
	}
	ok, err := repo.MarkMessageRead(ctx, l.DB, messageID)
	if err != nil {
		return false, storage(err, ErrMessageNotFound)
	}
	return ok, nil
}

// Get returns a message or ErrMessageNotFound.
func (l *MessageLedger) Get(ctx context.Context, id string) (*domain.ChatMessage, error) {
	m, err := repo.GetMessage(ctx, l.DB, id)
	if err != nil {
		return nil, storage(err, ErrMessageNotFound)
	}
	return m, nil
}

// Stats summarises a session's messages for conditional GETs.
func (l *MessageLedger) Stats(ctx context.Context, sessionID string) (repo.ListStats, error) {
	st, err := repo.MessagesStats(ctx, l.DB, sessionID)
	if err != nil {
		return st, storage(err, ErrSessionNotFound)
	}
	return st, nil
}

func (l *MessageLedger) previewRunes() int {
	if l.PreviewRunes > 0 {
		return l.PreviewRunes
	}
	return defaultPreviewRunes
}

func (l *MessageLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return utcNow()
}

// normalizeContent unifies line endings, composes to NFC and trims.
func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}

// Preview truncates s to n runes and marks the cut with an ellipsis.
func Preview(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + previewEllipsis
}
