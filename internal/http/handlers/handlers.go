// Package handlers exposes the chat session workflow over HTTP.
//
// Handlers are transport-thin: they resolve the caller from the identity
// headers, bind and validate input, call the services and translate results
// (and service error kinds) into JSON responses. Polled list endpoints carry
// weak ETags; creating POSTs honour Idempotency-Key.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/repo"
	"github.com/tbourn/nutrichat-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// DirectoryService serves nutritionist profiles.
type DirectoryService interface {
	Onboard(ctx context.Context, p domain.NutritionistProfile) (*domain.NutritionistProfile, error)
	ListWithStatus(ctx context.Context, onlyAvailable bool) ([]services.ProfileWithStatus, error)
	GetWithStatus(ctx context.Context, id string) (*services.ProfileWithStatus, error)
	Status(ctx context.Context, id string) (domain.AvailabilityStatus, error)
	UpdateProfile(ctx context.Context, id string, patch services.ProfilePatch) (*domain.NutritionistProfile, error)
}

// RequestService runs the session request lifecycle.
type RequestService interface {
	Create(ctx context.Context, userID, nutritionistID, initialQuery string) (*domain.SessionRequest, error)
	Accept(ctx context.Context, requestID, nutritionistID string) (*domain.ChatSession, error)
	Reject(ctx context.Context, requestID, nutritionistID string) (bool, error)
	Cancel(ctx context.Context, requestID, userID string) (bool, error)
	Get(ctx context.Context, id string) (*domain.SessionRequest, error)
	ListForUser(ctx context.Context, userID string) ([]domain.SessionRequest, error)
	ListPendingForNutritionist(ctx context.Context, nutritionistID string) ([]domain.SessionRequest, error)
}

// SessionService reads and ends chat sessions.
type SessionService interface {
	Get(ctx context.Context, id string) (*domain.ChatSession, error)
	ActiveForUser(ctx context.Context, userID string) (*domain.ChatSession, error)
	ListForNutritionist(ctx context.Context, nutritionistID string) ([]domain.ChatSession, error)
	ListActiveForNutritionist(ctx context.Context, nutritionistID string) ([]domain.ChatSession, error)
	ListForUser(ctx context.Context, userID string) ([]domain.ChatSession, error)
	End(ctx context.Context, sessionID string, endedBy domain.Role, actorID string) (bool, error)
}

// MessageService appends to and reads a session's ledger.
type MessageService interface {
	Append(ctx context.Context, sessionID, content string, sender domain.Role, senderID string) (*domain.ChatMessage, error)
	Get(ctx context.Context, id string) (*domain.ChatMessage, error)
	List(ctx context.Context, sessionID string, afterSeq int64) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, messageID, readerID string) (bool, error)
	Stats(ctx context.Context, sessionID string) (repo.ListStats, error)
}

// NotificationService serves a recipient's inbox.
type NotificationService interface {
	ListFor(ctx context.Context, recipientID string, recipientType domain.Role, unreadOnly bool) ([]domain.ChatNotification, error)
	MarkRead(ctx context.Context, notificationID, recipientID string, recipientType domain.Role) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, recipientType domain.Role) (int64, error)
	UnreadCount(ctx context.Context, recipientID string, recipientType domain.Role) (int64, error)
	Stats(ctx context.Context, recipientID string, recipientType domain.Role) (repo.ListStats, error)
}

//
// Handler wiring
//

// Options tunes transport-level behaviour.
type Options struct {
	// PollInterval is advertised on /sync/config.
	PollInterval time.Duration
	// IdempotencyTTL is how long a recorded Idempotency-Key replays.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	dir      DirectoryService
	requests RequestService
	sessions SessionService
	messages MessageService
	notes    NotificationService
	idem     IdempotencyStore
	opts     Options
}

// Services bundles the dependencies of New.
type Services struct {
	Directory     DirectoryService
	Requests      RequestService
	Sessions      SessionService
	Messages      MessageService
	Notifications NotificationService
	// Idempotency may be nil, which disables replay.
	Idempotency IdempotencyStore
}

// New constructs Handlers bound to the given services.
func New(s Services, opts Options) *Handlers {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{
		dir:      s.Directory,
		requests: s.Requests,
		sessions: s.Sessions,
		messages: s.Messages,
		notes:    s.Notifications,
		idem:     s.Idempotency,
		opts:     opts,
	}
}

// Register mounts every endpoint on rg.
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("/nutritionists", h.ListNutritionists)
	rg.POST("/nutritionists", h.OnboardNutritionist)
	rg.GET("/nutritionists/:id", h.GetNutritionist)
	rg.PATCH("/nutritionists/:id", h.UpdateNutritionist)
	rg.GET("/nutritionists/:id/status", h.GetNutritionistStatus)
	rg.GET("/nutritionists/:id/session-requests", h.ListNutritionistRequests)
	rg.GET("/nutritionists/:id/sessions", h.ListNutritionistSessions)

	rg.POST("/session-requests", h.CreateSessionRequest)
	rg.GET("/session-requests", h.ListSessionRequests)
	rg.GET("/session-requests/:id", h.GetSessionRequest)
	rg.POST("/session-requests/:id/accept", h.AcceptSessionRequest)
	rg.POST("/session-requests/:id/reject", h.RejectSessionRequest)
	rg.POST("/session-requests/:id/cancel", h.CancelSessionRequest)

	rg.GET("/sessions", h.ListSessions)
	rg.GET("/sessions/active", h.GetActiveSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.POST("/sessions/:id/end", h.EndSession)
	rg.GET("/sessions/:id/messages", h.ListMessages)
	rg.POST("/sessions/:id/messages", h.PostMessage)
	rg.POST("/messages/:id/read", h.MarkMessageRead)

	rg.GET("/notifications", h.ListNotifications)
	rg.GET("/notifications/unread-count", h.UnreadNotificationCount)
	rg.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	rg.POST("/notifications/:id/read", h.MarkNotificationRead)

	rg.GET("/sync/config", h.SyncConfig)
}
