// Nutritionist directory handlers.
//
//   - GET   /nutritionists[?available=true]
//   - POST  /nutritionists
//   - GET   /nutritionists/{id}
//   - PATCH /nutritionists/{id}
//   - GET   /nutritionists/{id}/status
//   - GET   /nutritionists/{id}/session-requests
//   - GET   /nutritionists/{id}/sessions[?active=true]
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/http/middleware"
	"github.com/tbourn/nutrichat-backend/internal/services"
)

// OnboardRequest is the payload for creating a profile. ID may be omitted,
// in which case the caller's X-Nutritionist-ID is used, or one is generated.
type OnboardRequest struct {
	ID                  string              `json:"id"                    example:"n-anna"`
	Name                string              `json:"name"                  binding:"required" example:"Anna Keller"`
	Specialties         []string            `json:"specialties"           example:"sports,weight loss"`
	Bio                 string              `json:"bio"`
	Available           bool                `json:"available"`
	NextAvailableSlot   *time.Time          `json:"next_available_slot,omitempty"`
	WorkingHours        domain.WorkingHours `json:"working_hours,omitempty"`
	AverageResponseTime int                 `json:"average_response_time" example:"12"`
}

// NutritionistResponse wraps a single profile.
type NutritionistResponse struct {
	Nutritionist any `json:"nutritionist"`
}

// ListNutritionistsResponse wraps the directory listing.
type ListNutritionistsResponse struct {
	Nutritionists []services.ProfileWithStatus `json:"nutritionists"`
}

// StatusResponse carries a derived availability status.
type StatusResponse struct {
	ID     string                    `json:"id"`
	Status domain.AvailabilityStatus `json:"status" example:"online"`
}

// ListNutritionists godoc
// @ID          listNutritionists
// @Summary     List nutritionists
// @Description Returns every profile with its derived status; available=true keeps only those with the availability flag set.
// @Tags        Nutritionists
// @Produce     json
// @Param       available  query  bool  false  "Only available nutritionists"
// @Success     200  {object}  handlers.ListNutritionistsResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /nutritionists [get]
func (h *Handlers) ListNutritionists(c *gin.Context) {
	items, err := h.dir.ListWithStatus(c.Request.Context(), queryBool(c, "available"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListNutritionistsResponse{Nutritionists: nonNil(items)})
}

// OnboardNutritionist godoc
// @ID          onboardNutritionist
// @Summary     Create a nutritionist profile
// @Tags        Nutritionists
// @Accept      json
// @Produce     json
// @Param       X-Nutritionist-ID  header  string                   false  "Caller nutritionist id"
// @Param       body               body    handlers.OnboardRequest  true   "Profile"
// @Success     201  {object}  handlers.NutritionistResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /nutritionists [post]
func (h *Handlers) OnboardNutritionist(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	id := strings.TrimSpace(req.ID)
	if me, ok := middleware.NutritionistID(c); ok {
		if id != "" && id != me {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "profile id must match "+middleware.HeaderNutritionistID)
			return
		}
		id = me
	}

	p, err := h.dir.Onboard(c.Request.Context(), domain.NutritionistProfile{
		ID:                  id,
		Name:                req.Name,
		Specialties:         req.Specialties,
		Bio:                 req.Bio,
		Available:           req.Available,
		NextAvailableSlot:   req.NextAvailableSlot,
		WorkingHours:        req.WorkingHours,
		AverageResponseTime: req.AverageResponseTime,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, NutritionistResponse{Nutritionist: p})
}

// GetNutritionist godoc
// @ID          getNutritionist
// @Summary     Get a nutritionist profile with status
// @Tags        Nutritionists
// @Produce     json
// @Param       id  path  string  true  "Nutritionist id"
// @Success     200  {object}  handlers.NutritionistResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /nutritionists/{id} [get]
func (h *Handlers) GetNutritionist(c *gin.Context) {
	p, err := h.dir.GetWithStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NutritionistResponse{Nutritionist: p})
}

// UpdateNutritionist godoc
// @ID          updateNutritionist
// @Summary     Update own profile
// @Description Only supplied fields change. Setting available is how a nutritionist goes online or offline.
// @Tags        Nutritionists
// @Accept      json
// @Produce     json
// @Param       X-Nutritionist-ID  header  string                 true  "Caller nutritionist id"
// @Param       id                 path    string                 true  "Nutritionist id"
// @Param       body               body    services.ProfilePatch  true  "Fields to change"
// @Success     200  {object}  handlers.NutritionistResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /nutritionists/{id} [patch]
func (h *Handlers) UpdateNutritionist(c *gin.Context) {
	id := c.Param("id")
	if !requireSelf(c, id) {
		return
	}
	var patch services.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.dir.UpdateProfile(c.Request.Context(), id, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NutritionistResponse{Nutritionist: p})
}

// GetNutritionistStatus godoc
// @ID          getNutritionistStatus
// @Summary     Derived availability status
// @Tags        Nutritionists
// @Produce     json
// @Param       id  path  string  true  "Nutritionist id"
// @Success     200  {object}  handlers.StatusResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /nutritionists/{id}/status [get]
func (h *Handlers) GetNutritionistStatus(c *gin.Context) {
	id := c.Param("id")
	st, err := h.dir.Status(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StatusResponse{ID: id, Status: st})
}

// ListNutritionistRequests godoc
// @ID          listNutritionistRequests
// @Summary     Pending requests addressed to the caller
// @Tags        Nutritionists
// @Produce     json
// @Param       X-Nutritionist-ID  header  string  true  "Caller nutritionist id"
// @Param       id                 path    string  true  "Nutritionist id"
// @Success     200  {object}  handlers.ListRequestsResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /nutritionists/{id}/session-requests [get]
func (h *Handlers) ListNutritionistRequests(c *gin.Context) {
	id := c.Param("id")
	if !requireSelf(c, id) {
		return
	}
	items, err := h.requests.ListPendingForNutritionist(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: nonNil(items)})
}

// ListNutritionistSessions godoc
// @ID          listNutritionistSessions
// @Summary     Sessions of the caller
// @Tags        Nutritionists
// @Produce     json
// @Param       X-Nutritionist-ID  header  string  true   "Caller nutritionist id"
// @Param       id                 path    string  true   "Nutritionist id"
// @Param       active             query   bool    false  "Only active sessions"
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /nutritionists/{id}/sessions [get]
func (h *Handlers) ListNutritionistSessions(c *gin.Context) {
	id := c.Param("id")
	if !requireSelf(c, id) {
		return
	}
	var (
		items []domain.ChatSession
		err   error
	)
	if queryBool(c, "active") {
		items, err = h.sessions.ListActiveForNutritionist(c.Request.Context(), id)
	} else {
		items, err = h.sessions.ListForNutritionist(c.Request.Context(), id)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: nonNil(items)})
}

// queryBool reads a true/1 query flag.
func queryBool(c *gin.Context, name string) bool {
	v := c.Query(name)
	return v == "1" || strings.EqualFold(v, "true")
}
