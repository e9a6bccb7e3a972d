// Package domain defines the persistence models for nutritionist profiles,
// session requests, chat sessions, messages and notifications. These types
// are mapped with GORM and form the core data layer of the chat service.
package domain

import (
	"time"
)

// Role identifies which side of a session an actor is on.
type Role string

const (
	RoleUser         Role = "user"
	RoleNutritionist Role = "nutritionist"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleNutritionist }

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleUser {
		return RoleNutritionist
	}
	return RoleUser
}

// AvailabilityStatus is derived from a profile and the session table on every
// query. It is never persisted.
type AvailabilityStatus string

const (
	StatusOnline  AvailabilityStatus = "online"
	StatusBusy    AvailabilityStatus = "busy"
	StatusOffline AvailabilityStatus = "offline"
)

// DeriveStatus computes the availability of a nutritionist from the profile
// flag and whether the nutritionist currently holds an active session.
func DeriveStatus(available, hasActiveSession bool) AvailabilityStatus {
	switch {
	case !available:
		return StatusOffline
	case hasActiveSession:
		return StatusBusy
	default:
		return StatusOnline
	}
}

// TimeRange is a working-hours window expressed as "HH:MM" strings.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end"   yaml:"end"`
}

// WorkingHours maps a lower-case weekday ("monday") to its window.
type WorkingHours map[string]TimeRange

// NutritionistProfile is the directory entry for a nutritionist. Profiles are
// created at onboarding, edited by their owner and never deleted.
//
// Fields:
//   - Available: flag set by the nutritionist; the only stored input to status.
//   - NextAvailableSlot: optional hint shown to users while offline.
//   - WorkingHours: declared hours, informational.
//   - AverageResponseTime: minutes, informational; used as a selection tie-break.
type NutritionistProfile struct {
	ID                  string       `json:"id"                             gorm:"type:varchar(64);primaryKey"`
	Name                string       `json:"name"                           gorm:"type:varchar(255);not null"`
	Specialties         []string     `json:"specialties"                    gorm:"type:text;serializer:json"`
	Bio                 string       `json:"bio"                            gorm:"type:text"`
	Available           bool         `json:"available"                      gorm:"not null;default:false;index"`
	NextAvailableSlot   *time.Time   `json:"next_available_slot,omitempty"`
	WorkingHours        WorkingHours `json:"working_hours"                  gorm:"type:text;serializer:json"`
	AverageResponseTime int          `json:"average_response_time"          gorm:"not null;default:0"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// TableName returns the database table name for NutritionistProfile.
func (NutritionistProfile) TableName() string { return "nutritionist_profiles" }

// RequestStatus is the stored state of a SessionRequest.
//
// active means accepted and ended means resolved without a session (rejected,
// cancelled or expired). Both are terminal.
type RequestStatus string

const (
	RequestPending RequestStatus = "pending"
	RequestActive  RequestStatus = "active"
	RequestEnded   RequestStatus = "ended"
)

// Resolution records why a request left pending.
type Resolution string

const (
	ResolutionAccepted  Resolution = "accepted"
	ResolutionRejected  Resolution = "rejected"
	ResolutionCancelled Resolution = "cancelled"
	ResolutionExpired   Resolution = "expired"
)

// SessionRequest is a user's ask to start a session. Only the request broker
// mutates it and it is never deleted.
//
// A partial unique index keeps at most one pending row per user.
type SessionRequest struct {
	ID                      string        `json:"id"                                  gorm:"type:char(36);primaryKey"`
	UserID                  string        `json:"user_id"                             gorm:"type:varchar(64);not null;index"`
	RequestedNutritionistID *string       `json:"requested_nutritionist_id,omitempty" gorm:"type:varchar(64);index"`
	InitialQuery            *string       `json:"initial_query,omitempty"             gorm:"type:text"`
	Status                  RequestStatus `json:"status"                              gorm:"type:varchar(16);not null;index;check:status IN ('pending','active','ended')"`
	Resolution              *Resolution   `json:"resolution,omitempty"                gorm:"type:varchar(16)"`
	ResolvedBy              *string       `json:"resolved_by,omitempty"               gorm:"type:varchar(64)"`
	ResolvedAt              *time.Time    `json:"resolved_at,omitempty"`
	ExpiresAt               time.Time     `json:"expires_at"                          gorm:"not null;index"`
	CreatedAt               time.Time     `json:"created_at"`
}

// TableName returns the database table name for SessionRequest.
func (SessionRequest) TableName() string { return "session_requests" }

// EffectiveStatus applies the expiry policy: a pending request past its
// expiry reads as ended even before the sweeper persists it.
func (r SessionRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestPending && !now.Before(r.ExpiresAt) {
		return RequestEnded
	}
	return r.Status
}

// SessionStatus is the state of a ChatSession.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// ChatSession is a one-to-one chat created by accepting a SessionRequest.
// A partial unique index on user_id WHERE status = 'active' guarantees at
// most one active session per user.
type ChatSession struct {
	ID             string        `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID         string        `json:"user_id"              gorm:"type:varchar(64);not null;index"`
	NutritionistID string        `json:"nutritionist_id"      gorm:"type:varchar(64);not null;index:idx_sessions_nutritionist_status,priority:1"`
	RequestID      *string       `json:"request_id,omitempty" gorm:"type:char(36);index"`
	Status         SessionStatus `json:"status"               gorm:"type:varchar(16);not null;index:idx_sessions_nutritionist_status,priority:2;check:status IN ('active','ended')"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	EndedBy        *Role         `json:"ended_by,omitempty"   gorm:"type:varchar(16)"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Participant returns the id of the participant holding role.
func (s ChatSession) Participant(role Role) string {
	if role == RoleNutritionist {
		return s.NutritionistID
	}
	return s.UserID
}

// ChatMessage is an append-only entry in a session. Only Read changes after
// insert. Seq is a per-session insertion counter used to break timestamp ties.
type ChatMessage struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:ux_messages_session_seq,priority:1;index:idx_messages_session_sent,priority:1"`
	Seq       int64     `json:"seq"        gorm:"not null;uniqueIndex:ux_messages_session_seq,priority:2"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Sender    Role      `json:"sender"     gorm:"type:varchar(16);not null;check:sender IN ('user','nutritionist')"`
	SenderID  string    `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Timestamp time.Time `json:"timestamp"  gorm:"column:sent_at;not null;index:idx_messages_session_sent,priority:2"`
	Read      bool      `json:"read"       gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	// Session is the owning chat. Messages go with it.
	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// NotificationType enumerates the events that produce notifications.
type NotificationType string

const (
	NotifyNewMessage      NotificationType = "new_message"
	NotifySessionRequest  NotificationType = "session_request"
	NotifySessionAccepted NotificationType = "session_accepted"
	NotifySessionRejected NotificationType = "session_rejected"
	NotifySessionEnded    NotificationType = "session_ended"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyNewMessage, NotifySessionRequest, NotifySessionAccepted, NotifySessionRejected, NotifySessionEnded:
		return true
	}
	return false
}

// ChatNotification is addressed to exactly one (recipient, recipient type)
// pair. Only a read acknowledgement mutates it.
type ChatNotification struct {
	ID              string           `json:"id"                          gorm:"type:char(36);primaryKey"`
	RecipientID     string           `json:"recipient_id"                gorm:"type:varchar(64);not null;index:idx_notifications_recipient,priority:1"`
	RecipientType   Role             `json:"recipient_type"              gorm:"type:varchar(16);not null;index:idx_notifications_recipient,priority:2;check:recipient_type IN ('user','nutritionist')"`
	Type            NotificationType `json:"type"                        gorm:"type:varchar(32);not null"`
	Message         string           `json:"message"                     gorm:"type:text;not null"`
	RelatedEntityID *string          `json:"related_entity_id,omitempty" gorm:"type:char(36)"`
	Read            bool             `json:"read"                        gorm:"column:is_read;not null;default:false"`
	CreatedAt       time.Time        `json:"created_at"                  gorm:"index:idx_notifications_recipient,priority:3"`
}

// TableName returns the database table name for ChatNotification.
func (ChatNotification) TableName() string { return "chat_notifications" }
