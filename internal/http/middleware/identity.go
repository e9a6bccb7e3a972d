// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. Authentication lives outside this
// service: a gateway in front of it verifies the caller and forwards the id
// in one of two headers, X-User-ID for end users and X-Nutritionist-ID for
// nutritionists. Identity() copies them into the Gin context so handlers,
// the rate limiter, idempotency and logging all read the same values.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderNutritionistID = "X-Nutritionist-ID"

	ctxKeyUserID         = "userID"
	ctxKeyNutritionistID = "nutritionistID"
)

// maxIdentityLen bounds identity header values; longer values are ignored.
const maxIdentityLen = 64

// Identity stores the trimmed identity headers in the context. Missing or
// oversized values are simply absent; handlers decide whether they need one.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := identityHeader(c, HeaderUserID); v != "" {
			c.Set(ctxKeyUserID, v)
		}
		if v := identityHeader(c, HeaderNutritionistID); v != "" {
			c.Set(ctxKeyNutritionistID, v)
		}
		c.Next()
	}
}

func identityHeader(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if len(v) > maxIdentityLen {
		return ""
	}
	return v
}

// UserID returns the end-user id of the caller.
func UserID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyUserID)
	return s, s != ""
}

// NutritionistID returns the nutritionist id of the caller.
func NutritionistID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyNutritionistID)
	return s, s != ""
}

// ActorKey names the caller for per-caller state such as rate-limit buckets
// and idempotency records: "user:<id>", "nutritionist:<id>" or "" when
// anonymous. A nutritionist header wins when both are present.
func ActorKey(c *gin.Context) string {
	if id, ok := NutritionistID(c); ok {
		return "nutritionist:" + id
	}
	if id, ok := UserID(c); ok {
		return "user:" + id
	}
	return ""
}
