// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatSession model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// CreateSession inserts a session. A second active session for the same
// user violates ux_chat_sessions_active_user (see IsDuplicate).
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSession fetches a session by id or returns ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveSessionForUser returns the user's active session or ErrNotFound.
func ActiveSessionForUser(ctx context.Context, db *gorm.DB, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.SessionActive).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessionsForNutritionist returns the nutritionist's sessions, most
// recently started first, optionally only the active ones.
func ListSessionsForNutritionist(ctx context.Context, db *gorm.DB, nutritionistID string, onlyActive bool) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	q := db.WithContext(ctx).Where("nutritionist_id = ?", nutritionistID)
	if onlyActive {
		q = q.Where("status = ?", domain.SessionActive)
	}
	err := q.Order("started_at DESC, id DESC").Find(&out).Error
	return out, err
}

// ListSessionsForUser returns the user's sessions, most recent first.
func ListSessionsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// EndSession flips an active session to ended. It reports false when the
// session is missing or already ended.
func EndSession(ctx context.Context, db *gorm.DB, id string, endedBy domain.Role, now time.Time) (bool, error) {
	r := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]any{
			"status":   domain.SessionEnded,
			"ended_at": now,
			"ended_by": endedBy,
		})
	if r.Error != nil {
		return false, r.Error
	}
	return r.RowsAffected == 1, nil
}

// NutritionistHasActiveSession reports whether any active session names the
// nutritionist.
func NutritionistHasActiveSession(ctx context.Context, db *gorm.DB, nutritionistID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("nutritionist_id = ? AND status = ?", nutritionistID, domain.SessionActive).
		Count(&n).Error
	return n > 0, err
}

// BusyNutritionistIDs returns the set of nutritionists holding at least one
// active session.
func BusyNutritionistIDs(ctx context.Context, db *gorm.DB) (map[string]struct{}, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("status = ?", domain.SessionActive).
		Distinct().
		Pluck("nutritionist_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
