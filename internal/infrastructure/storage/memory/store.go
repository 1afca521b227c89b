package memory

import (
	"context"
	"sync"
)

// SessionStore is a process-local session backend.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]string
}

func New() *SessionStore {
	return &SessionStore{sessions: make(map[string]map[string]string)}
}

func (s *SessionStore) Load(_ context.Context, sessionID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.sessions[sessionID]))
	for key, value := range s.sessions[sessionID] {
		out[key] = value
	}
	return out, nil
}

func (s *SessionStore) Apply(_ context.Context, sessionID string, set map[string]string, unset []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.sessions[sessionID]
	if !ok {
		values = make(map[string]string)
		s.sessions[sessionID] = values
	}
	for _, key := range unset {
		delete(values, key)
	}
	for key, value := range set {
		values[key] = value
	}
	return nil
}

func (s *SessionStore) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
