package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

func sessionWithDocument(t *testing.T, documentID string) (*sessionBackendFake, *IdentityStore) {
	t.Helper()
	sessions := newSessionBackendFake()
	sessions.data["tab-1"] = map[string]string{keyDocumentID: documentID}
	return sessions, hydratedStore(t, sessions, "tab-1")
}

func TestStartAnalysisRequiresRegulation(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{completed(1)}}
	_, store := sessionWithDocument(t, "doc-1")
	uc := NewStartAnalysisUseCase(backend, store, nil, AnalysisSettings{}, nil, nil)

	_, err := uc.StartAnalysis(context.Background())
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if statusCalls, startCalls, _ := backend.counters(); statusCalls != 0 || startCalls != 0 {
		t.Fatalf("expected no requests, got status=%d start=%d", statusCalls, startCalls)
	}
}

func TestStartAnalysisAutoSelectWithoutRegulation(t *testing.T) {
	backend := &backendFake{
		statuses:    []statusReply{completed(1)},
		startResult: &domain.AnalysisStart{AnalysisID: "an-1"},
	}
	_, store := sessionWithDocument(t, "doc-1")
	uc := NewStartAnalysisUseCase(backend, store, nil, AnalysisSettings{AutoSelect: true}, nil, nil)

	if _, err := uc.StartAnalysis(context.Background()); err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	if backend.startReq.RegulationID != "" {
		t.Fatalf("expected no regulation id, got %q", backend.startReq.RegulationID)
	}
}

func TestStartAnalysisRequiresCompletedDocument(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{processing(10, 4)}}
	_, store := sessionWithDocument(t, "doc-1")
	uc := NewStartAnalysisUseCase(backend, store, nil, AnalysisSettings{RegulationID: "part-145"}, nil, nil)

	_, err := uc.StartAnalysis(context.Background())
	if !domain.IsKind(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, startCalls, _ := backend.counters(); startCalls != 0 {
		t.Fatalf("expected no analysis request, got %d", startCalls)
	}
}

func TestStartAnalysisWithoutDocument(t *testing.T) {
	store := hydratedStore(t, newSessionBackendFake(), "tab-1")
	uc := NewStartAnalysisUseCase(&backendFake{}, store, nil, AnalysisSettings{RegulationID: "part-145"}, nil, nil)

	if _, err := uc.StartAnalysis(context.Background()); !domain.IsKind(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStartAnalysisPersistsIdentity(t *testing.T) {
	backend := &backendFake{
		statuses:    []statusReply{completed(5)},
		startResult: &domain.AnalysisStart{AnalysisID: "an-1", Message: "Analysis started"},
	}
	sessions, store := sessionWithDocument(t, "doc-1")
	events := &eventsFake{}
	settings := AnalysisSettings{RegulationID: "part-145", RegulationVersion: "2025-09-AMC-GM"}
	uc := NewStartAnalysisUseCase(backend, store, events, settings, newAutoClock(), nil)

	analysisID, err := uc.StartAnalysis(context.Background())
	if err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	if analysisID != "an-1" {
		t.Fatalf("expected an-1, got %s", analysisID)
	}
	if backend.startReq.DocumentID != "doc-1" || backend.startReq.RegulationID != "part-145" || backend.startReq.RegulationVersion != "2025-09-AMC-GM" {
		t.Fatalf("unexpected request %+v", backend.startReq)
	}
	if got := sessions.value("tab-1", keyAnalysisID); got != "an-1" {
		t.Fatalf("expected persisted an-1, got %q", got)
	}
	if types := events.types(); len(types) != 1 || types[0] != domain.EventAnalysisStarted {
		t.Fatalf("expected analysis.started event, got %v", types)
	}
}

func TestStartAnalysisDiscardsIdentityOfSupersededDocument(t *testing.T) {
	backend := &backendFake{
		statuses:    []statusReply{completed(5)},
		startResult: &domain.AnalysisStart{AnalysisID: "an-1"},
	}
	sessions, store := sessionWithDocument(t, "doc-1")
	backend.onStart = func() {
		if err := store.SetDocumentID(context.Background(), "doc-2"); err != nil {
			t.Errorf("SetDocumentID() error = %v", err)
		}
	}
	uc := NewStartAnalysisUseCase(backend, store, nil, AnalysisSettings{RegulationID: "part-145"}, nil, nil)

	_, err := uc.StartAnalysis(context.Background())
	if !domain.IsKind(err, domain.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if got := sessions.value("tab-1", keyAnalysisID); got != "" {
		t.Fatalf("expected no analysis id persisted, got %q", got)
	}
}

func TestStartAnalysisBackendError(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{completed(5)}, startErr: errors.New("boom")}
	sessions, store := sessionWithDocument(t, "doc-1")
	uc := NewStartAnalysisUseCase(backend, store, nil, AnalysisSettings{RegulationID: "part-145"}, nil, nil)

	if _, err := uc.StartAnalysis(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if sessions.applies != 0 {
		t.Fatalf("expected no writes, got %d", sessions.applies)
	}
}
