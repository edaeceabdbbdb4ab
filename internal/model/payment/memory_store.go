package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Create inserts all sessions or none.
func (s *MemoryStore) Create(_ context.Context, sessions ...Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		if sess.ID == "" {
			return fmt.Errorf("create session: empty id")
		}
		if _, ok := s.sessions[sess.ID]; ok {
			return fmt.Errorf("create session %s: %w", sess.ID, ErrAlreadyExists)
		}
		if _, ok := seen[sess.ID]; ok {
			return fmt.Errorf("create session %s: %w", sess.ID, ErrAlreadyExists)
		}
		seen[sess.ID] = struct{}{}
	}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Update runs fn under the write lock against copies of the session and its
// partner, then stores both copies when fn succeeds.
func (s *MemoryStore) Update(_ context.Context, id string, fn Mutator) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	var partner *Session
	if sess.PairID != "" {
		if p, ok := s.sessions[sess.PairID]; ok {
			partner = &p
		}
	}

	if err := fn(&sess, partner); err != nil {
		return Session{}, err
	}

	// The mutator must not re-key sessions.
	s.sessions[id] = sess
	if partner != nil {
		s.sessions[sess.PairID] = *partner
	}
	return sess, nil
}

// Remove deletes the session and its partner, returning what was removed.
func (s *MemoryStore) Remove(_ context.Context, id string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	removed := []Session{sess}
	delete(s.sessions, id)

	if sess.PairID != "" {
		if partner, ok := s.sessions[sess.PairID]; ok {
			removed = append(removed, partner)
			delete(s.sessions, sess.PairID)
		}
	}
	return removed, nil
}

// List returns a snapshot ordered by creation time.
func (s *MemoryStore) List(_ context.Context) []Session {
	s.mu.RLock()
	items := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		items = append(items, sess)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// Len reports how many sessions are live.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
