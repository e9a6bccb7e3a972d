// Chat session handlers.
//
//   - GET  /sessions            (the calling user's sessions)
//   - GET  /sessions/active     (the calling user's active session)
//   - GET  /sessions/{id}
//   - POST /sessions/{id}/end   (either participant; idempotent)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// SessionResponse wraps one chat session.
type SessionResponse struct {
	Session *domain.ChatSession `json:"session"`
}

// ListSessionsResponse wraps a list of chat sessions.
type ListSessionsResponse struct {
	Sessions []domain.ChatSession `json:"sessions"`
}

// EndSessionResponse reports whether this call ended the session.
type EndSessionResponse struct {
	Changed bool                `json:"changed"`
	Session *domain.ChatSession `json:"session"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     The calling user's sessions, newest first
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller user id"
// @Success     200  {object}  handlers.ListSessionsResponse
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	userID, okID := requireUser(c)
	if !okID {
		return
	}
	items, err := h.sessions.ListForUser(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: nonNil(items)})
}

// GetActiveSession godoc
// @ID          getActiveSession
// @Summary     The calling user's active session
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller user id"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No active session"
// @Router      /sessions/active [get]
func (h *Handlers) GetActiveSession(c *gin.Context) {
	userID, okID := requireUser(c)
	if !okID {
		return
	}
	sess, err := h.sessions.ActiveForUser(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session
// @Tags        Sessions
// @Produce     json
// @Param       id  path  string  true  "Session id"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	_, sess, okSess := h.participantSession(c)
	if !okSess {
		return
	}
	ok(c, http.StatusOK, SessionResponse{Session: sess})
}

// EndSession godoc
// @ID          endSession
// @Summary     End a session
// @Description Either participant may end it. Ending an ended session changes nothing and reports changed=false.
// @Tags        Sessions
// @Produce     json
// @Param       id  path  string  true  "Session id"
// @Success     200  {object}  handlers.EndSessionResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/end [post]
func (h *Handlers) EndSession(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	changed, err := h.sessions.End(ctx, id, role, actorID)
	if err != nil {
		failErr(c, err)
		return
	}
	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, EndSessionResponse{Changed: changed, Session: sess})
}

// participantSession loads the :id session and checks the caller is in it.
func (h *Handlers) participantSession(c *gin.Context) (domain.Role, *domain.ChatSession, bool) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return "", nil, false
	}
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return "", nil, false
	}
	if !isParticipant(sess, role, actorID) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this session")
		return "", nil, false
	}
	return role, sess, true
}
