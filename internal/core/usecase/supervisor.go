package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// LifecycleFactory opens the lifecycle of one session.
type LifecycleFactory func(sessionID string) (*Lifecycle, error)

type SessionRunObserver interface {
	StartSession()
	FinishSession(duration time.Duration, err error)
}

// Supervisor drives uploaded documents to a ready analysis inside a worker
// process, one session per document.
type Supervisor struct {
	open     LifecycleFactory
	observer SessionRunObserver
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Lifecycle
}

func NewSupervisor(open LifecycleFactory, observer SessionRunObserver, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		open:     open,
		observer: observer,
		logger:   logger,
		sessions: make(map[string]*Lifecycle),
	}
}

func WorkerSessionID(documentID string) string {
	return "worker-" + documentID
}

// HandleDocumentUploaded adopts the uploaded document into a worker session
// and resumes it until the analysis has outcomes.
func (s *Supervisor) HandleDocumentUploaded(ctx context.Context, event domain.LifecycleEvent) error {
	if event.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle document uploaded", errors.New("event carries no document id"))
	}

	if event.Driven {
		s.logger.Info("worker_session_skipped",
			"origin_session_id", event.SessionID,
			"document_id", event.DocumentID,
			"reason", "driven by origin session",
		)
		return nil
	}

	sessionID := WorkerSessionID(event.DocumentID)
	lifecycle, err := s.lifecycle(sessionID)
	if err != nil {
		return err
	}
	if err := lifecycle.Hydrate(ctx); err != nil {
		return err
	}
	if current, ok := lifecycle.Identity().DocumentID(); !ok || current != event.DocumentID {
		if err := lifecycle.Identity().SetDocumentID(ctx, event.DocumentID); err != nil {
			return err
		}
	}

	if _, ok := lifecycle.Identity().AnalysisID(); !ok {
		if err := s.adoptOriginAnalysis(ctx, lifecycle.Identity(), event); err != nil {
			return err
		}
	}

	if s.observer != nil {
		s.observer.StartSession()
	}
	started := time.Now()
	report, err := lifecycle.Resume(ctx, ResumeOptions{})
	if s.observer != nil {
		s.observer.FinishSession(time.Since(started), err)
	}
	if err != nil {
		s.logger.Error("worker_session_failed",
			"session_id", sessionID,
			"origin_session_id", event.SessionID,
			"document_id", event.DocumentID,
			"error", err,
		)
		return err
	}

	s.logger.Info("worker_session_ready",
		"session_id", sessionID,
		"document_id", event.DocumentID,
		"analysis_id", report.AnalysisID,
		"outcomes", len(report.Compliance),
	)
	return nil
}

// adoptOriginAnalysis reuses an analysis the origin session already started
// for the document, so one document never gets a second run.
func (s *Supervisor) adoptOriginAnalysis(ctx context.Context, identity *IdentityStore, event domain.LifecycleEvent) error {
	if event.SessionID == "" || event.SessionID == identity.SessionID() {
		return nil
	}
	origin, err := s.open(event.SessionID)
	if err != nil {
		return fmt.Errorf("open origin session %s: %w", event.SessionID, err)
	}
	if err := origin.Hydrate(ctx); err != nil {
		return err
	}
	documentID, _ := origin.Identity().DocumentID()
	analysisID, ok := origin.Identity().AnalysisID()
	if !ok || documentID != event.DocumentID {
		return nil
	}

	s.logger.Info("worker_session_adopted_analysis",
		"session_id", identity.SessionID(),
		"origin_session_id", event.SessionID,
		"document_id", event.DocumentID,
		"analysis_id", analysisID,
	)
	return identity.SetAnalysisIDFor(ctx, event.DocumentID, analysisID)
}

func (s *Supervisor) Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	lifecycle, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if ok {
		snapshot := lifecycle.Snapshot()
		snapshot.ActiveInWorker = true
		return snapshot, nil
	}

	// sessions run by other processes are still readable from the shared backend
	lifecycle, err := s.open(sessionID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if err := lifecycle.Hydrate(ctx); err != nil {
		return domain.SessionSnapshot{}, err
	}
	snapshot := lifecycle.Snapshot()
	if snapshot.DocumentID == "" {
		return domain.SessionSnapshot{}, domain.WrapError(domain.ErrNotFound, "read session", fmt.Errorf("session %s", sessionID))
	}
	return snapshot, nil
}

func (s *Supervisor) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Shutdown cancels every running loop.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lifecycle := range s.sessions {
		lifecycle.Cancel()
	}
}

func (s *Supervisor) lifecycle(sessionID string) (*Lifecycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lifecycle, ok := s.sessions[sessionID]; ok {
		return lifecycle, nil
	}
	lifecycle, err := s.open(sessionID)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", sessionID, err)
	}
	s.sessions[sessionID] = lifecycle
	return lifecycle, nil
}
