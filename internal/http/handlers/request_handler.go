// Session request handlers.
//
//   - POST /session-requests              (user asks for a session; Idempotency-Key)
//   - GET  /session-requests              (the caller's requests)
//   - GET  /session-requests/{id}
//   - POST /session-requests/{id}/accept  (target nutritionist)
//   - POST /session-requests/{id}/reject  (target nutritionist)
//   - POST /session-requests/{id}/cancel  (requesting user)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// CreateRequestBody is the payload of POST /session-requests. Without a
// nutritionist_id the best available nutritionist for the query is chosen.
type CreateRequestBody struct {
	NutritionistID string `json:"nutritionist_id" example:"n-anna"`
	InitialQuery   string `json:"initial_query"   example:"I need a meal plan for marathon training"`
}

// RequestResponse wraps one session request.
type RequestResponse struct {
	Request *domain.SessionRequest `json:"request"`
}

// ListRequestsResponse wraps a list of session requests.
type ListRequestsResponse struct {
	Requests []domain.SessionRequest `json:"requests"`
}

// ResolveResponse reports whether a reject or cancel changed anything.
type ResolveResponse struct {
	Changed bool `json:"changed"`
}

// CreateSessionRequest godoc
// @ID          createSessionRequest
// @Summary     Request a chat session
// @Description A user may hold one pending request at a time. With Idempotency-Key a retry returns the original request.
// @Tags        SessionRequests
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string                      true   "Caller user id"
// @Param       Idempotency-Key  header  string                      false  "Retry key"
// @Param       body             body    handlers.CreateRequestBody  false  "Target and first message"
// @Success     201  {object}  handlers.RequestResponse
// @Success     200  {object}  handlers.RequestResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /session-requests [post]
func (h *Handlers) CreateSessionRequest(c *gin.Context) {
	userID, okID := requireUser(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()

	if id := h.replayID(c); id != "" {
		if prev, err := h.requests.Get(ctx, id); err == nil {
			replayed(c, RequestResponse{Request: prev})
			return
		}
	}

	var body CreateRequestBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	req, err := h.requests.Create(ctx, userID, body.NutritionistID, body.InitialQuery)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, req.ID, http.StatusCreated)
	ok(c, http.StatusCreated, RequestResponse{Request: req})
}

// ListSessionRequests godoc
// @ID          listSessionRequests
// @Summary     The caller's session requests, newest first
// @Tags        SessionRequests
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller user id"
// @Success     200  {object}  handlers.ListRequestsResponse
// @Router      /session-requests [get]
func (h *Handlers) ListSessionRequests(c *gin.Context) {
	userID, okID := requireUser(c)
	if !okID {
		return
	}
	items, err := h.requests.ListForUser(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: nonNil(items)})
}

// GetSessionRequest godoc
// @ID          getSessionRequest
// @Summary     Get a session request
// @Description Visible to the requesting user and the addressed nutritionist. An overdue pending request reads as ended/expired.
// @Tags        SessionRequests
// @Produce     json
// @Param       id  path  string  true  "Request id"
// @Success     200  {object}  handlers.RequestResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /session-requests/{id} [get]
func (h *Handlers) GetSessionRequest(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	visible := (role == domain.RoleUser && req.UserID == actorID) ||
		(role == domain.RoleNutritionist && req.RequestedNutritionistID != nil && *req.RequestedNutritionistID == actorID)
	if !visible {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a party to this session request")
		return
	}
	ok(c, http.StatusOK, RequestResponse{Request: req})
}

// AcceptSessionRequest godoc
// @ID          acceptSessionRequest
// @Summary     Accept a pending request
// @Description Creates the chat session; the initial query becomes its first message. Exactly one of several concurrent accepts wins.
// @Tags        SessionRequests
// @Produce     json
// @Param       X-Nutritionist-ID  header  string  true  "Caller nutritionist id"
// @Param       id                 path    string  true  "Request id"
// @Success     201  {object}  handlers.SessionResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /session-requests/{id}/accept [post]
func (h *Handlers) AcceptSessionRequest(c *gin.Context) {
	nutritionistID, okID := requireNutritionist(c)
	if !okID {
		return
	}
	sess, err := h.requests.Accept(c.Request.Context(), c.Param("id"), nutritionistID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, SessionResponse{Session: sess})
}

// RejectSessionRequest godoc
// @ID          rejectSessionRequest
// @Summary     Reject a pending request
// @Description Idempotent: rejecting a request that is no longer pending changes nothing and reports changed=false.
// @Tags        SessionRequests
// @Produce     json
// @Param       X-Nutritionist-ID  header  string  true  "Caller nutritionist id"
// @Param       id                 path    string  true  "Request id"
// @Success     200  {object}  handlers.ResolveResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /session-requests/{id}/reject [post]
func (h *Handlers) RejectSessionRequest(c *gin.Context) {
	nutritionistID, okID := requireNutritionist(c)
	if !okID {
		return
	}
	changed, err := h.requests.Reject(c.Request.Context(), c.Param("id"), nutritionistID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ResolveResponse{Changed: changed})
}

// CancelSessionRequest godoc
// @ID          cancelSessionRequest
// @Summary     Withdraw one's own pending request
// @Tags        SessionRequests
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller user id"
// @Param       id         path    string  true  "Request id"
// @Success     200  {object}  handlers.ResolveResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /session-requests/{id}/cancel [post]
func (h *Handlers) CancelSessionRequest(c *gin.Context) {
	userID, okID := requireUser(c)
	if !okID {
		return
	}
	changed, err := h.requests.Cancel(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ResolveResponse{Changed: changed})
}
