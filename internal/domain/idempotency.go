package domain

import "time"

// Idempotency records the outcome of a POST so a retry carrying the same
// Idempotency-Key returns the original entity instead of creating another.
// Records are keyed by (user_id, scope, key); scope is the route target,
// e.g. "session-requests" or "sessions/<id>/messages".
type Idempotency struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	UserID    string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	EntityID  string    `gorm:"type:varchar(64);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
