// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the polled list endpoints.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// ListStats summarises a polled collection. Rows are only ever inserted or
// flipped to read, so the triple changes whenever a list response would.
type ListStats struct {
	Count     int64
	ReadCount int64
	MaxSeq    int64 // 0 for notifications
}

// MessagesStats returns count, read count and highest seq for a session.
func MessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (ListStats, error) {
	var st ListStats
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Select("COUNT(*) AS count, COALESCE(SUM(CASE WHEN is_read THEN 1 ELSE 0 END), 0) AS read_count, COALESCE(MAX(seq), 0) AS max_seq").
		Where("session_id = ?", sessionID).
		Scan(&st).Error
	return st, err
}

// NotificationsStats returns count and read count of a recipient's
// notifications.
func NotificationsStats(ctx context.Context, db *gorm.DB, recipientID string, recipientType domain.Role) (ListStats, error) {
	var st ListStats
	err := db.WithContext(ctx).
		Model(&domain.ChatNotification{}).
		Select("COUNT(*) AS count, COALESCE(SUM(CASE WHEN is_read THEN 1 ELSE 0 END), 0) AS read_count").
		Where("recipient_id = ? AND recipient_type = ?", recipientID, recipientType).
		Scan(&st).Error
	return st, err
}
