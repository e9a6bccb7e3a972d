// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// NutritionistProfile model.
//
// Profiles are never deleted. Updates name the columns they touch so that
// only the fields a caller supplies are written.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateNutritionist inserts a profile. The caller provides the ID.
func CreateNutritionist(ctx context.Context, db *gorm.DB, p *domain.NutritionistProfile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return db.WithContext(ctx).Create(p).Error
}

// GetNutritionist fetches a profile by id or returns ErrNotFound.
func GetNutritionist(ctx context.Context, db *gorm.DB, id string) (*domain.NutritionistProfile, error) {
	var p domain.NutritionistProfile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListNutritionists returns all profiles ordered by name, optionally only
// those with the available flag set.
func ListNutritionists(ctx context.Context, db *gorm.DB, onlyAvailable bool) ([]domain.NutritionistProfile, error) {
	var out []domain.NutritionistProfile
	q := db.WithContext(ctx).Model(&domain.NutritionistProfile{})
	if onlyAvailable {
		q = q.Where("available = ?", true)
	}
	err := q.Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

// UpdateNutritionist writes only the named columns of p (plus updated_at).
// Struct updates keep the JSON serializers on specialties and working hours.
// Returns ErrNotFound when no row matches p.ID.
func UpdateNutritionist(ctx context.Context, db *gorm.DB, p *domain.NutritionistProfile, columns []string) error {
	p.UpdatedAt = time.Now().UTC()
	cols := append(append([]string{}, columns...), "updated_at")
	res := db.WithContext(ctx).
		Model(&domain.NutritionistProfile{ID: p.ID}).
		Select(cols).
		Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertNutritionist inserts the profile or overwrites the existing row with
// the same id. Used by directory seeding.
func UpsertNutritionist(ctx context.Context, db *gorm.DB, p *domain.NutritionistProfile) error {
	existing, err := GetNutritionist(ctx, db, p.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CreateNutritionist(ctx, db, p)
		}
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(p).Error
}
