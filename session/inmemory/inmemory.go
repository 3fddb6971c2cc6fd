// Package inmemory is the default session store: a process-local map,
// sufficient for a single instance and for tests.
package inmemory

import (
	"context"
	"sync"

	"github.com/hqtran/keyseek/session"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.State
}

func New() *Store {
	return &Store{sessions: make(map[string]session.State)}
}

func (s *Store) Load(_ context.Context, id string) (session.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return session.State{}, session.ErrNotFound
	}
	return st, nil
}

func (s *Store) Save(_ context.Context, st session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.SessionID] = st
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
