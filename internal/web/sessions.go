package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matsen/paperchat/internal/rag"
)

// SessionStore maps browser session ids to conversations and forgets
// sessions that have been idle longer than ttl.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	now      func() time.Time
}

type session struct {
	conv     *rag.Conversation
	lastSeen time.Time
}

// NewSessionStore creates a store. A ttl of zero or less never expires.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// GetOrCreate returns the conversation for id, creating a new session with a
// fresh id when id is empty, unknown or expired.
func (s *SessionStore) GetOrCreate(id string) (string, *rag.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[id]; ok && !s.expired(sess, now) {
		sess.lastSeen = now
		return id, sess.conv
	}

	delete(s.sessions, id)
	id = uuid.NewString()
	sess := &session{conv: rag.NewConversation(), lastSeen: now}
	s.sessions[id] = sess
	return id, sess.conv
}

// Lookup returns the conversation for an existing, unexpired session.
func (s *SessionStore) Lookup(id string) (*rag.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess.conv, true
}

// DiscardEmpty removes id if its conversation has no turns. It undoes a
// GetOrCreate whose first request failed.
func (s *SessionStore) DiscardEmpty(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.conv.TurnCount() > 0 {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions, including expired ones not yet swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func (s *SessionStore) expired(sess *session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastSeen) > s.ttl
}
