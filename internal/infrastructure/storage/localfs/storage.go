package localfs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// SessionStore keeps one JSON file per session under basePath.
type SessionStore struct {
	basePath string

	mu sync.Mutex
}

func New(basePath string) (*SessionStore, error) {
	if basePath == "" {
		basePath = "./data/sessions"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionStore{basePath: basePath}, nil
}

func (s *SessionStore) Load(_ context.Context, sessionID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(sessionID)
}

// Apply rewrites the session file through a temp file and rename, so a
// crash leaves either the old or the new record.
func (s *SessionStore) Apply(_ context.Context, sessionID string, set map[string]string, unset []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read(sessionID)
	if err != nil {
		return err
	}
	for _, key := range unset {
		delete(values, key)
	}
	for key, value := range set {
		values[key] = value
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *SessionStore) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *SessionStore) read(sessionID string) (map[string]string, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return values, nil
}

// maxSessionIDBytes keeps the hex-encoded file name under the common
// 255 byte file name limit.
const maxSessionIDBytes = 120

// path maps a session id to its file. Hex keeps the mapping one-to-one and
// safe on case-insensitive filesystems.
func (s *SessionStore) path(sessionID string) (string, error) {
	if sessionID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "session file", errors.New("empty session id"))
	}
	if len(sessionID) > maxSessionIDBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "session file", fmt.Errorf("session id longer than %d bytes", maxSessionIDBytes))
	}
	return filepath.Join(s.basePath, "session-"+hex.EncodeToString([]byte(sessionID))+".json"), nil
}
