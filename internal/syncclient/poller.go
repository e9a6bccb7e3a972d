package syncclient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// DefaultInterval is used when a Poller has no interval configured.
const DefaultInterval = 15 * time.Second

// DefaultResyncEvery makes every fourth poll refetch the whole message list
// so read receipts on already known messages catch up.
const DefaultResyncEvery = 4

// Source fetches server state. HTTPSource is the production implementation.
type Source interface {
	Session(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	Messages(ctx context.Context, sessionID string, afterSeq int64) ([]domain.ChatMessage, error)
	Notifications(ctx context.Context) ([]domain.ChatNotification, error)
}

// Update describes what one poll changed.
type Update struct {
	SessionChanged   bool
	NewMessages      int
	NewNotifications int
	// NewReads counts known messages that turned read.
	NewReads int
	CanSend  bool
}

// Poller refetches one session's state on a fixed interval.
type Poller struct {
	Source    Source
	SessionID string
	Interval  time.Duration
	State     *State

	// ResyncEvery > 0 makes every ResyncEvery-th poll fetch messages from
	// the start instead of after the cursor. 0 only ever fetches newer ones.
	ResyncEvery int

	// OnUpdate, if set, is called after every poll that changed something.
	OnUpdate func(Update)

	polls int
}

// NewPoller builds a poller with a fresh State.
func NewPoller(src Source, sessionID string, interval time.Duration) *Poller {
	return &Poller{
		Source:      src,
		SessionID:   sessionID,
		Interval:    interval,
		State:       NewState(),
		ResyncEvery: DefaultResyncEvery,
	}
}

// Poll runs one refresh. Errors from individual fetches are joined; whatever
// did arrive is still merged.
func (p *Poller) Poll(ctx context.Context) (Update, error) {
	var (
		u    Update
		errs []error
	)
	if sess, err := p.Source.Session(ctx, p.SessionID); err != nil {
		errs = append(errs, err)
	} else {
		u.SessionChanged = p.State.ApplySession(sess)
	}
	after := p.State.MaxSeq()
	if p.ResyncEvery > 0 && p.polls > 0 && p.polls%p.ResyncEvery == 0 {
		after = 0
	}
	p.polls++
	readBefore := p.State.ReadCount()
	if msgs, err := p.Source.Messages(ctx, p.SessionID, after); err != nil {
		errs = append(errs, err)
	} else {
		u.NewMessages = p.State.MergeMessages(msgs)
		u.NewReads = p.State.ReadCount() - readBefore
	}
	if notes, err := p.Source.Notifications(ctx); err != nil {
		errs = append(errs, err)
	} else {
		u.NewNotifications = p.State.MergeNotifications(notes)
	}
	u.CanSend = p.State.CanSend()
	return u, errors.Join(errs...)
}

// Run polls immediately and then every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		u, err := p.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("session_id", p.SessionID).Msg("poll failed")
		}
		if p.OnUpdate != nil && (u.SessionChanged || u.NewMessages > 0 || u.NewReads > 0 || u.NewNotifications > 0) {
			p.OnUpdate(u)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
