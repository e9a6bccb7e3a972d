package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// newRepoDB opens a migrated file-backed SQLite database in a temp dir.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedSession(t *testing.T, db *gorm.DB, id, userID, nutritionistID string, status domain.SessionStatus) *domain.ChatSession {
	t.Helper()
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:             id,
		UserID:         userID,
		NutritionistID: nutritionistID,
		Status:         status,
		StartedAt:      now,
		CreatedAt:      now,
	}
	if err := CreateSession(context.Background(), db, s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}
