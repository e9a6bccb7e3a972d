// Notification handlers.
//
//   - GET  /notifications[?unread=true&limit=N]   (newest first, weak ETag)
//   - GET  /notifications/unread-count    (badge counter)
//   - POST /notifications/{id}/read
//   - POST /notifications/read-all
//   - GET  /sync/config                   (poll interval for clients)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/utils"
)

// ListNotificationsResponse carries the inbox and the unread total.
type ListNotificationsResponse struct {
	Notifications []domain.ChatNotification `json:"notifications"`
	Unread        int64                     `json:"unread"`
}

// UnreadCountResponse is the badge counter.
type UnreadCountResponse struct {
	Unread int64 `json:"unread" example:"3"`
}

// MarkAllReadResponse reports how many notifications were flipped.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// SyncConfigResponse tells polling clients how often to refresh.
type SyncConfigResponse struct {
	PollIntervalSeconds int `json:"poll_interval_seconds" example:"15"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     The caller's notifications, newest first
// @Description The caller is the nutritionist when X-Nutritionist-ID is sent, otherwise the user. Supports weak ETag and may return 304.
// @Tags        Notifications
// @Produce     json
// @Param       unread         query   bool    false  "Only unread"
// @Param       limit          query   int     false  "Newest N only"  minimum(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	unreadOnly := queryBool(c, "unread")
	limit := utils.NonNegative(utils.AtoiDefault(c.Query("limit"), 0))

	st, err := h.notes.Stats(ctx, actorID, role)
	if err != nil {
		failErr(c, err)
		return
	}
	if notModified(c, weakETag("notifications", role, actorID, st.Count, st.ReadCount, unreadOnly, limit)) {
		return
	}

	items, err := h.notes.ListFor(ctx, actorID, role, unreadOnly)
	if err != nil {
		failErr(c, err)
		return
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: nonNil(items),
		Unread:        st.Count - st.ReadCount,
	})
}

// UnreadNotificationCount godoc
// @ID          unreadNotificationCount
// @Summary     Number of unread notifications
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadNotificationCount(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	n, err := h.notes.UnreadCount(c.Request.Context(), actorID, role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Tags        Notifications
// @Produce     json
// @Param       id  path  string  true  "Notification id"
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	changed, err := h.notes.MarkRead(c.Request.Context(), c.Param("id"), actorID, role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Changed: changed})
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.MarkAllReadResponse
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	role, actorID, okID := requireActor(c)
	if !okID {
		return
	}
	n, err := h.notes.MarkAllRead(c.Request.Context(), actorID, role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}

// SyncConfig godoc
// @ID          syncConfig
// @Summary     Polling configuration for clients
// @Tags        Sync
// @Produce     json
// @Success     200  {object}  handlers.SyncConfigResponse
// @Router      /sync/config [get]
func (h *Handlers) SyncConfig(c *gin.Context) {
	ok(c, http.StatusOK, SyncConfigResponse{PollIntervalSeconds: int(h.opts.PollInterval.Seconds())})
}
