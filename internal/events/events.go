// Package events publishes domain events about session requests, sessions
// and messages to an external broker. Publication happens after the owning
// transaction commits and is best-effort: a broker outage never fails the
// transition the event describes.
package events

import (
	"context"
	"time"
)

// Type names a domain event.
type Type string

const (
	SessionRequested Type = "session.requested"
	RequestAccepted  Type = "session.accepted"
	RequestRejected  Type = "session.rejected"
	RequestCancelled Type = "session.cancelled"
	RequestExpired   Type = "session.expired"
	SessionEnded     Type = "session.ended"
	MessageAppended  Type = "message.appended"
)

// Event is the JSON payload written to the broker. Key selects the partition
// so events of one session (or request) stay ordered.
type Event struct {
	Type           Type      `json:"type"`
	Key            string    `json:"key"`
	RequestID      string    `json:"request_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	NutritionistID string    `json:"nutritionist_id,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. It is the default when no broker is set.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
