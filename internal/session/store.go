// Package session provides the in-memory session store for weighbot.
//
// Sessions are keyed by the opaque user identity of the conversing principal.
// Two concurrent events for the same user are applied atomically and in
// arrival order; events for different users proceed independently.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
)

// Store is a concurrent map from user identity to session with per-key
// locking. Mutation for one user never blocks processing for another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	slog.Debug("Creating session store")
	return &Store{sessions: make(map[string]*entry)}
}

// Get retrieves the session for userID. Absence is not an error: callers
// treat a missing session as the idle/menu state.
func (s *Store) Get(userID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Put stores the session for userID, creating the keyed slot when absent.
func (s *Store) Put(userID string, sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[userID]; ok {
		e.session = sess
		return
	}
	s.sessions[userID] = &entry{session: sess}
}

// Remove deletes the session for userID. Removing an absent key is a no-op.
func (s *Store) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Apply runs fn against the session for userID under the per-key lock,
// creating a fresh idle session when none exists. fn returning keep=false
// removes the session afterwards; keep=true stores it back. This is the
// single mutation path used by the workflow router, so reaper eviction and
// event application never interleave for the same user.
func (s *Store) Apply(userID string, now time.Time, fn func(sess *models.Session) (keep bool)) {
	e := s.slot(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.session
	if sess == nil {
		slog.Debug("Session store creating fresh session", "userID", userID)
		sess = models.NewSession(userID, now)
	}
	if fn(sess) {
		e.session = sess
		s.mu.Lock()
		s.sessions[userID] = e
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// slot returns the keyed entry for userID, creating it when absent. The
// entry's own mutex serializes application for that user only.
func (s *Store) slot(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{}
		s.sessions[userID] = e
	}
	return e
}

// ListIdleSince returns the user IDs of sessions whose last activity is at
// or before threshold.
func (s *Store) ListIdleSince(threshold time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var idle []string
	for userID, e := range s.sessions {
		if e.session != nil && !e.session.LastActivity.After(threshold) {
			idle = append(idle, userID)
		}
	}
	return idle
}

// Evict atomically removes and returns the session for userID if its last
// activity is still at or before threshold. An event that slips in first
// refreshes the session and suppresses the eviction.
func (s *Store) Evict(userID string, threshold time.Time) (*models.Session, bool) {
	s.mu.Lock()
	e, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session
	if sess == nil || sess.LastActivity.After(threshold) {
		return nil, false
	}
	// Clear the entry itself, not just the map slot: an Apply that already
	// holds this entry must find no session and start fresh.
	e.session = nil
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	slog.Debug("Session store evicted session", "userID", userID, "flow", sess.FlowID)
	return sess, true
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
