// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SessionRequest model.
//
// Transitions out of pending are compare-and-swap updates: the WHERE clause
// carries the expected status and the expiry guard, and callers inspect the
// boolean result to learn whether they won.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// SystemActor is recorded as resolver when a request expires.
const SystemActor = "system"

// CreateRequest inserts a pending request. A second pending row for the same
// user violates ux_session_requests_pending_user (see IsDuplicate).
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.SessionRequest) error {
	return db.WithContext(ctx).Create(r).Error
}

// GetRequest fetches a request by id or returns ErrNotFound.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.SessionRequest, error) {
	var r domain.SessionRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequestsForUser returns every request the user made, newest first.
func ListRequestsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.SessionRequest, error) {
	var out []domain.SessionRequest
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListPendingRequestsForNutritionist returns unexpired pending requests
// addressed to the nutritionist, oldest first so they are answered in order.
func ListPendingRequestsForNutritionist(ctx context.Context, db *gorm.DB, nutritionistID string, now time.Time) ([]domain.SessionRequest, error) {
	var out []domain.SessionRequest
	err := db.WithContext(ctx).
		Where("requested_nutritionist_id = ? AND status = ? AND expires_at > ?", nutritionistID, domain.RequestPending, now).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ResolveRequest moves a live pending request to status `to`, recording the
// resolution and the actor. It reports false when the row is missing, no
// longer pending, or already past its expiry.
func ResolveRequest(ctx context.Context, db *gorm.DB, id string, to domain.RequestStatus, res domain.Resolution, by string, now time.Time) (bool, error) {
	r := db.WithContext(ctx).
		Model(&domain.SessionRequest{}).
		Where("id = ? AND status = ? AND expires_at > ?", id, domain.RequestPending, now).
		Updates(map[string]any{
			"status":      to,
			"resolution":  res,
			"resolved_by": by,
			"resolved_at": now,
		})
	if r.Error != nil {
		return false, r.Error
	}
	return r.RowsAffected == 1, nil
}

// ExpireStaleRequests persists the expiry of every pending request whose
// deadline has passed. When userID is non-empty only that user's rows are
// touched. Returns the number of rows expired.
func ExpireStaleRequests(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.SessionRequest{}).
		Where("status = ? AND expires_at <= ?", domain.RequestPending, now)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	r := q.Updates(map[string]any{
		"status":      domain.RequestEnded,
		"resolution":  domain.ResolutionExpired,
		"resolved_by": SystemActor,
		"resolved_at": now,
	})
	return r.RowsAffected, r.Error
}
