// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatNotification model.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// CreateNotification inserts a notification row.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.ChatNotification) error {
	return db.WithContext(ctx).Create(n).Error
}

// GetNotification fetches a notification by id or returns ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.ChatNotification, error) {
	var n domain.ChatNotification
	if err := db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotifications returns the recipient's notifications, newest first.
// Ids are time-ordered (UUIDv7), so they break created_at ties by insertion.
// A limit <= 0 returns all rows.
func ListNotifications(ctx context.Context, db *gorm.DB, recipientID string, recipientType domain.Role, unreadOnly bool, limit int) ([]domain.ChatNotification, error) {
	var out []domain.ChatNotification
	q := db.WithContext(ctx).
		Where("recipient_id = ? AND recipient_type = ?", recipientID, recipientType)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkNotificationRead sets the read flag. It reports false when the row is
// missing or already read.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	r := db.WithContext(ctx).
		Model(&domain.ChatNotification{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	if r.Error != nil {
		return false, r.Error
	}
	return r.RowsAffected == 1, nil
}

// MarkAllNotificationsRead flags every unread notification of the recipient
// and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, recipientID string, recipientType domain.Role) (int64, error) {
	r := db.WithContext(ctx).
		Model(&domain.ChatNotification{}).
		Where("recipient_id = ? AND recipient_type = ? AND is_read = ?", recipientID, recipientType, false).
		Update("is_read", true)
	return r.RowsAffected, r.Error
}

// CountUnreadNotifications returns how many notifications await the recipient.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, recipientID string, recipientType domain.Role) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChatNotification{}).
		Where("recipient_id = ? AND recipient_type = ? AND is_read = ?", recipientID, recipientType, false).
		Count(&n).Error
	return n, err
}
