package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/http/middleware"
	"github.com/tbourn/nutrichat-backend/internal/repo"
)

// IdempotencyStore records which entity a keyed POST created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, actor, scope, key string, now time.Time) (string, bool, error)
	Record(ctx context.Context, actor, scope, key, entityID string, status int, ttl time.Duration) error
}

// GormIdempotencyStore keeps records in the idempotency table.
type GormIdempotencyStore struct {
	DB *gorm.DB
}

// NewGormIdempotencyStore returns a store over db.
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{DB: db}
}

// Lookup returns the entity recorded for (actor, scope, key), if still valid.
// Its signature matches middleware.IdempotencyLookup.
func (s *GormIdempotencyStore) Lookup(ctx context.Context, actor, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, actor, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.EntityID, true, nil
}

// Record stores the outcome. A concurrent duplicate is not an error: the
// first writer's record stands.
func (s *GormIdempotencyStore) Record(ctx context.Context, actor, scope, key, entityID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, actor, scope, key, entityID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// replayID returns the entity id of an earlier identical POST, if any.
// The middleware normally resolves it; the direct lookup covers handlers
// mounted without it.
func (h *Handlers) replayID(c *gin.Context) string {
	if middleware.IsReplay(c) {
		return middleware.ReplayEntityID(c)
	}
	if _, checked := middleware.GetIdempotencyKey(c); checked {
		return ""
	}
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if key == "" || h.idem == nil {
		return ""
	}
	id, found, err := h.idem.Lookup(c.Request.Context(), middleware.ActorKey(c), middleware.IdempotencyScope(c), key, time.Now().UTC())
	if err != nil || !found {
		return ""
	}
	return id
}

// remember records entityID under the request's Idempotency-Key. Failures
// are logged; the primary write already succeeded.
func (h *Handlers) remember(c *gin.Context, entityID string, status int) {
	key, ok := idempotencyKey(c)
	if !ok || h.idem == nil {
		return
	}
	if err := h.idem.Record(c.Request.Context(), middleware.ActorKey(c), middleware.IdempotencyScope(c), key, entityID, status, h.opts.IdempotencyTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
	}
}

func idempotencyKey(c *gin.Context) (string, bool) {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k, true
	}
	k := c.GetHeader(middleware.HeaderIdempotencyKey)
	return k, k != ""
}
