// Package syncclient implements the client side of the polling contract:
// refetch session state on a fixed interval, merge what arrives by id and
// keep a consistent local view regardless of duplicates or arrival order.
//
// The server never pushes. A client that follows this package sees every
// message at most one interval late and stops offering a send box as soon as
// a fetched session reads as ended.
package syncclient

import (
	"sort"
	"sync"

	"github.com/tbourn/nutrichat-backend/internal/domain"
)

// State is the merged local view of one session. Safe for concurrent use.
type State struct {
	mu            sync.RWMutex
	session       *domain.ChatSession
	messages      map[string]domain.ChatMessage
	notifications map[string]domain.ChatNotification
	maxSeq        int64
}

// NewState returns an empty view.
func NewState() *State {
	return &State{
		messages:      make(map[string]domain.ChatMessage),
		notifications: make(map[string]domain.ChatNotification),
	}
}

// ApplySession records the latest session snapshot. An ended session is
// never downgraded back to active by a stale response.
func (s *State) ApplySession(sess *domain.ChatSession) bool {
	if sess == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Status == domain.SessionEnded && sess.Status != domain.SessionEnded {
		return false
	}
	changed := s.session == nil || s.session.Status != sess.Status
	cp := *sess
	s.session = &cp
	return changed
}

// MergeMessages adds unseen messages and updates read flags of known ones
// present in the batch. It returns how many messages were new. Incremental
// pages only carry newer messages; read receipts on older ones arrive with a
// full page (see Poller.ResyncEvery).
func (s *State) MergeMessages(in []domain.ChatMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range in {
		old, ok := s.messages[m.ID]
		if !ok {
			added++
		} else if old.Read {
			// read is one-way
			m.Read = true
		}
		s.messages[m.ID] = m
		if m.Seq > s.maxSeq {
			s.maxSeq = m.Seq
		}
	}
	return added
}

// MergeNotifications adds unseen notifications and updates read flags. It
// returns how many were new.
func (s *State) MergeNotifications(in []domain.ChatNotification) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, n := range in {
		old, ok := s.notifications[n.ID]
		if !ok {
			added++
		} else if old.Read {
			n.Read = true
		}
		s.notifications[n.ID] = n
	}
	return added
}

// ReadCount is the number of messages marked read.
func (s *State) ReadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.Read {
			n++
		}
	}
	return n
}

// Messages returns the messages ordered by timestamp, ties by sequence.
func (s *State) Messages() []domain.ChatMessage {
	s.mu.RLock()
	out := make([]domain.ChatMessage, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Notifications returns notifications newest first.
func (s *State) Notifications() []domain.ChatNotification {
	s.mu.RLock()
	out := make([]domain.ChatNotification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Session returns a copy of the last session snapshot, or nil.
func (s *State) Session() *domain.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// MaxSeq is the highest message sequence seen, the cursor for the next poll.
func (s *State) MaxSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSeq
}

// CanSend reports whether the session is known and still active.
func (s *State) CanSend() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && s.session.Status == domain.SessionActive
}
