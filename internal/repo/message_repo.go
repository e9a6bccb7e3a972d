// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// appendRetries bounds how often an append is retried after two writers
// picked the same sequence number.
const appendRetries = 5

// appendMessageSQL inserts a message only while its session is active and
// assigns the next per-session sequence number in the same statement.
const appendMessageSQL = `INSERT INTO chat_messages
	(id, session_id, seq, content, sender, sender_id, sent_at, is_read, created_at)
SELECT ?, ?, COALESCE((SELECT MAX(seq) FROM chat_messages WHERE session_id = ?), 0) + 1, ?, ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = ? AND status = ?)`

// Postgres types bare parameters in a SELECT list as text, so the variant
// casts them to the target column types.
const appendMessageSQLPostgres = `INSERT INTO chat_messages
	(id, session_id, seq, content, sender, sender_id, sent_at, is_read, created_at)
SELECT ?::text, ?::text, COALESCE((SELECT MAX(seq) FROM chat_messages WHERE session_id = ?), 0) + 1,
	?::text, ?::text, ?::text, ?::timestamptz, ?::boolean, ?::timestamptz
WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = ? AND status = ?)`

func appendSQL(db *gorm.DB) string {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return appendMessageSQLPostgres
	}
	return appendMessageSQL
}

// AppendMessage stores m if and only if its session is active at the moment
// of the insert. It reports false when the session is missing or not active.
// On success m.Seq holds the assigned sequence number.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	stmt := appendSQL(db)
	var err error
	for attempt := 0; attempt < appendRetries; attempt++ {
		r := db.WithContext(ctx).Exec(stmt,
			m.ID, m.SessionID, m.SessionID,
			m.Content, string(m.Sender), m.SenderID, m.Timestamp, false, m.CreatedAt,
			m.SessionID, string(domain.SessionActive),
		)
		err = r.Error
		if err == nil {
			if r.RowsAffected == 0 {
				return false, nil
			}
			return true, db.WithContext(ctx).
				Model(&domain.ChatMessage{}).
				Where("id = ?", m.ID).
				Pluck("seq", &m.Seq).Error
		}
		if !IsDuplicate(err) {
			return false, err
		}
	}
	return false, err
}

// GetMessage fetches a message by id or returns ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a session's messages ordered by timestamp, ties broken
// by insertion sequence. Only messages with seq > afterSeq are returned.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, afterSeq int64) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).Where("session_id = ?", sessionID)
	if afterSeq > 0 {
		q = q.Where("seq > ?", afterSeq)
	}
	err := q.Order("sent_at ASC, seq ASC").Find(&out).Error
	return out, err
}

// MarkMessageRead sets the read flag. It reports false when the message is
// missing or was already read.
func MarkMessageRead(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	r := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	if r.Error != nil {
		return false, r.Error
	}
	return r.RowsAffected == 1, nil
}
