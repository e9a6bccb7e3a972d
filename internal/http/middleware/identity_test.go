package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func identityRouter(t *testing.T, check func(c *gin.Context)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.GET("/who", func(c *gin.Context) {
		check(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestIdentity_UserHeader(t *testing.T) {
	r := identityRouter(t, func(c *gin.Context) {
		if id, ok := UserID(c); !ok || id != "u1" {
			t.Fatalf("UserID = %q, %v", id, ok)
		}
		if _, ok := NutritionistID(c); ok {
			t.Fatalf("unexpected nutritionist id")
		}
		if got := ActorKey(c); got != "user:u1" {
			t.Fatalf("ActorKey = %q", got)
		}
	})
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderUserID, "  u1 ")
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestIdentity_NutritionistWinsActorKey(t *testing.T) {
	r := identityRouter(t, func(c *gin.Context) {
		if got := ActorKey(c); got != "nutritionist:n1" {
			t.Fatalf("ActorKey = %q", got)
		}
		if id, _ := UserID(c); id != "u1" {
			t.Fatalf("user id should still be readable, got %q", id)
		}
	})
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderNutritionistID, "n1")
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestIdentity_AnonymousAndOversized(t *testing.T) {
	r := identityRouter(t, func(c *gin.Context) {
		if got := ActorKey(c); got != "" {
			t.Fatalf("ActorKey = %q, want anonymous", got)
		}
		if actorRole(c) != "anonymous" {
			t.Fatalf("actorRole = %q", actorRole(c))
		}
	})
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderUserID, strings.Repeat("x", maxIdentityLen+1))
	req.Header.Set(HeaderNutritionistID, "   ")
	r.ServeHTTP(httptest.NewRecorder(), req)
}
