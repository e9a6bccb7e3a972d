// Message HTTP handlers.
//
//   - POST /sessions/{id}/messages   (append; Idempotency-Key)
//   - GET  /sessions/{id}/messages   (ordered list, after_seq, weak ETag)
//   - POST /messages/{id}/read       (recipient marks a message read)
//
// Idempotency:
// If the client supplies an Idempotency-Key and an earlier POST with the
// same key created a message, that message is returned with
// `Idempotency-Replayed: true` instead of appending a duplicate.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/utils"
)

// PostMessageRequest is the JSON payload for sending a message. Content is
// normalised by the ledger (line endings, NFC, trim) and must not be empty
// afterwards.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required" example:"Can I swap oats for quinoa at breakfast?"`
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// ListMessagesResponse carries messages in timestamp order and the highest
// sequence returned, to pass back as after_seq on the next poll.
type ListMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	LastSeq  int64                `json:"last_seq"`
}

// MarkReadResponse reports whether the call flipped the read flag.
type MarkReadResponse struct {
	Changed bool `json:"changed"`
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends to an active session the caller participates in; the other participant gets one new_message notification.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                       false  "Retry key"
// @Param       id               path    string                       true   "Session id"
// @Param       body             body    handlers.PostMessageRequest  true   "Message"
// @Success     201  {object}  handlers.PostMessageResponse
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Session not active"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if id := h.replayID(c); id != "" {
		if prev, err := h.messages.Get(ctx, id); err == nil && prev.SessionID == sessionID {
			replayed(c, PostMessageResponse{Message: prev})
			return
		}
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	m, err := h.messages.Append(ctx, sessionID, req.Content, role, actorID)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a session
// @Description Ordered by timestamp, ties by insertion. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Param       id             path    string  true   "Session id"
// @Param       after_seq      query   int     false  "Only messages after this sequence"  minimum(0)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	_, sess, okSess := h.participantSession(c)
	if !okSess {
		return
	}
	ctx := c.Request.Context()
	afterSeq := utils.NonNegative(utils.Atoi64Default(c.Query("after_seq"), 0))

	// ETag pre-check (best effort).
	if st, err := h.messages.Stats(ctx, sess.ID); err == nil {
		etag := weakETag("messages", sess.ID, sess.Status, st.Count, st.ReadCount, st.MaxSeq, afterSeq)
		if notModified(c, etag) {
			return
		}
	}

	items, err := h.messages.List(ctx, sess.ID, afterSeq)
	if err != nil {
		failErr(c, err)
		return
	}
	last := afterSeq
	for _, m := range items {
		if m.Seq > last {
			last = m.Seq
		}
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: nonNil(items), LastSeq: last})
}

// MarkMessageRead godoc
// @ID          markMessageRead
// @Summary     Mark a received message read
// @Tags        Messages
// @Produce     json
// @Param       id  path  string  true  "Message id"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages/{id}/read [post]
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	_, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	changed, err := h.messages.MarkRead(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Changed: changed})
}
