package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

const (
	keyDocumentID = "document_id"
	keyAnalysisID = "analysis_id"
)

// IdentityStore holds the current document and analysis ids of one session
// and mirrors every change to a SessionBackend.
type IdentityStore struct {
	sessionID string
	backend   ports.SessionBackend

	mu         sync.Mutex
	hydrated   bool
	documentID string
	analysisID string

	hydratedOnce sync.Once
	hydratedCh   chan struct{}
}

func NewIdentityStore(sessionID string, backend ports.SessionBackend) *IdentityStore {
	return &IdentityStore{
		sessionID:  sessionID,
		backend:    backend,
		hydratedCh: make(chan struct{}),
	}
}

func (s *IdentityStore) SessionID() string {
	return s.sessionID
}

// Hydrate loads the persisted identities. Calling it again reloads them.
func (s *IdentityStore) Hydrate(ctx context.Context) error {
	values, err := s.backend.Load(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", s.sessionID, err)
	}

	s.mu.Lock()
	s.documentID = values[keyDocumentID]
	s.analysisID = values[keyAnalysisID]
	if s.documentID == "" {
		// an analysis never outlives its document
		s.analysisID = ""
	}
	s.hydrated = true
	s.mu.Unlock()

	s.hydratedOnce.Do(func() { close(s.hydratedCh) })
	return nil
}

// Hydrated is closed once the first Hydrate call succeeded.
func (s *IdentityStore) Hydrated() <-chan struct{} {
	return s.hydratedCh
}

func (s *IdentityStore) IsHydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// DocumentID reports the current document id. It is absent until hydrated.
func (s *IdentityStore) DocumentID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated || s.documentID == "" {
		return "", false
	}
	return s.documentID, true
}

func (s *IdentityStore) AnalysisID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated || s.analysisID == "" {
		return "", false
	}
	return s.analysisID, true
}

// RequireDocumentID is the strict accessor used by operations that need a document.
func (s *IdentityStore) RequireDocumentID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return "", domain.WrapError(domain.ErrNotHydrated, "read document id", errors.New(s.sessionID))
	}
	if s.documentID == "" {
		return "", domain.WrapError(domain.ErrNoSession, "read document id", errors.New("no document uploaded"))
	}
	return s.documentID, nil
}

func (s *IdentityStore) RequireAnalysisID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return "", domain.WrapError(domain.ErrNotHydrated, "read analysis id", errors.New(s.sessionID))
	}
	if s.analysisID == "" {
		return "", domain.WrapError(domain.ErrNoSession, "read analysis id", errors.New("no analysis started"))
	}
	return s.analysisID, nil
}

// SetDocumentID replaces the current document and drops its analysis in
// a single backend write.
func (s *IdentityStore) SetDocumentID(ctx context.Context, documentID string) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "set document id", errors.New("empty document id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return domain.WrapError(domain.ErrNotHydrated, "set document id", errors.New(s.sessionID))
	}

	if err := s.backend.Apply(ctx, s.sessionID, map[string]string{keyDocumentID: documentID}, []string{keyAnalysisID}); err != nil {
		return fmt.Errorf("persist document id: %w", err)
	}
	s.documentID = documentID
	s.analysisID = ""
	return nil
}

// ClearDocumentID removes the document and, with it, its analysis.
func (s *IdentityStore) ClearDocumentID(ctx context.Context) error {
	return s.unset(ctx, "clear document id", keyDocumentID, keyAnalysisID)
}

// SetAnalysisID binds an analysis to whatever document is current.
func (s *IdentityStore) SetAnalysisID(ctx context.Context, analysisID string) error {
	documentID, err := s.RequireDocumentID()
	if err != nil {
		return err
	}
	return s.SetAnalysisIDFor(ctx, documentID, analysisID)
}

// SetAnalysisIDFor stores analysisID only if documentID is still current.
func (s *IdentityStore) SetAnalysisIDFor(ctx context.Context, documentID, analysisID string) error {
	if analysisID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "set analysis id", errors.New("empty analysis id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return domain.WrapError(domain.ErrNotHydrated, "set analysis id", errors.New(s.sessionID))
	}
	if s.documentID != documentID {
		return domain.WrapError(
			domain.ErrSuperseded,
			"set analysis id",
			fmt.Errorf("analysis %s belongs to document %s, current is %q", analysisID, documentID, s.documentID),
		)
	}

	if err := s.backend.Apply(ctx, s.sessionID, map[string]string{keyAnalysisID: analysisID}, nil); err != nil {
		return fmt.Errorf("persist analysis id: %w", err)
	}
	s.analysisID = analysisID
	return nil
}

func (s *IdentityStore) ClearAnalysisID(ctx context.Context) error {
	return s.unset(ctx, "clear analysis id", keyAnalysisID)
}

// Clear forgets both identities and drops the durable session record.
func (s *IdentityStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Drop(ctx, s.sessionID); err != nil {
		return fmt.Errorf("drop session %s: %w", s.sessionID, err)
	}
	s.documentID = ""
	s.analysisID = ""
	return nil
}

func (s *IdentityStore) unset(ctx context.Context, operation string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return domain.WrapError(domain.ErrNotHydrated, operation, errors.New(s.sessionID))
	}

	if err := s.backend.Apply(ctx, s.sessionID, nil, keys); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	for _, key := range keys {
		switch key {
		case keyDocumentID:
			s.documentID = ""
		case keyAnalysisID:
			s.analysisID = ""
		}
	}
	return nil
}
