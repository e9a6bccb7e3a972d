// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for POST endpoints that create
// things (session requests, messages). It validates an Idempotency-Key
// header, looks up whether the same caller already completed the same
// operation with that key, and annotates the context so downstream code can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay) and serve the stored entity
//   - skip rate limiting for a replay
//
// Records are keyed by (actor, scope, key). The scope is the request path,
// so the same key sent to two different sessions never collides.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyIdemEntity = "idem.entity" // id of the entity the first call created
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a completed operation exists for this key.
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// ReplayEntityID returns the id recorded by the first successful call.
func ReplayEntityID(c *gin.Context) string { return c.GetString(ctxKeyIdemEntity) }

// IdempotencyScope is the scope under which a request's key is recorded.
// Handlers use it when storing a record so lookups and writes agree.
func IdempotencyScope(c *gin.Context) string { return c.Request.URL.Path }

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the entity id recorded for (actor, scope, key)
// if a still-valid record exists. TTL enforcement belongs to the lookup.
// Errors are treated as "no record" so a lookup failure never blocks a write.
type IdempotencyLookup func(ctx context.Context, actor, scope, key string, now time.Time) (entityID string, found bool, err error)

// IdempotencyValidator validates the Idempotency-Key header on POST requests
// and marks replays. Other methods pass through untouched. An invalid key is
// answered with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		actor := ActorKey(c)
		if lookup != nil && actor != "" {
			entityID, found, err := lookup(c.Request.Context(), actor, IdempotencyScope(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if err == nil && found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemEntity, entityID)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
