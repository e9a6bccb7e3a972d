package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/http/middleware"
)

// requireUser returns the end-user id or answers 401.
func requireUser(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, middleware.HeaderUserID+" header required")
	}
	return id, ok
}

// requireNutritionist returns the nutritionist id or answers 401.
func requireNutritionist(c *gin.Context) (string, bool) {
	id, ok := middleware.NutritionistID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, middleware.HeaderNutritionistID+" header required")
	}
	return id, ok
}

// requireActor resolves the caller as either side; the nutritionist header
// wins when both are sent.
func requireActor(c *gin.Context) (domain.Role, string, bool) {
	if id, ok := middleware.NutritionistID(c); ok {
		return domain.RoleNutritionist, id, true
	}
	if id, ok := middleware.UserID(c); ok {
		return domain.RoleUser, id, true
	}
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "identity header required")
	return "", "", false
}

// requireSelf answers 403 unless the calling nutritionist is id.
func requireSelf(c *gin.Context, id string) bool {
	me, ok := requireNutritionist(c)
	if !ok {
		return false
	}
	if me != id {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "nutritionists may only act on their own profile")
		return false
	}
	return true
}

// isParticipant reports whether (role, id) is one side of s.
func isParticipant(s *domain.ChatSession, role domain.Role, id string) bool {
	return s.Participant(role) == id
}
