package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

type sessionRunObserverFake struct {
	started  int
	finished int
	lastErr  error
}

func (o *sessionRunObserverFake) StartSession() { o.started++ }

func (o *sessionRunObserverFake) FinishSession(_ time.Duration, err error) {
	o.finished++
	o.lastErr = err
}

func TestSupervisorDrivesUploadedDocument(t *testing.T) {
	backend := &backendFake{
		statuses:    []statusReply{completed(3)},
		startResult: &domain.AnalysisStart{AnalysisID: "an-1"},
		reports:     []reportReply{reportWith(domain.RawOutcome{Status: domain.ComplianceFull})},
	}
	fx := newLifecycleFixture(backend)
	runs := &sessionRunObserverFake{}
	supervisor := NewSupervisor(func(sessionID string) (*Lifecycle, error) {
		return fx.open(sessionID), nil
	}, runs, nil)

	err := supervisor.HandleDocumentUploaded(context.Background(), domain.LifecycleEvent{
		Type:       domain.EventDocumentUploaded,
		SessionID:  "tab-1",
		DocumentID: "doc-1",
	})
	if err != nil {
		t.Fatalf("HandleDocumentUploaded() error = %v", err)
	}

	sessionID := WorkerSessionID("doc-1")
	if got := fx.sessions.value(sessionID, keyAnalysisID); got != "an-1" {
		t.Fatalf("expected worker session to hold an-1, got %q", got)
	}
	if runs.started != 1 || runs.finished != 1 || runs.lastErr != nil {
		t.Fatalf("unexpected run observations %+v", runs)
	}
	if sessions := supervisor.Sessions(); len(sessions) != 1 || sessions[0] != sessionID {
		t.Fatalf("unexpected sessions %v", sessions)
	}

	snapshot, err := supervisor.Snapshot(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !snapshot.ActiveInWorker || snapshot.DocumentID != "doc-1" || snapshot.AnalysisID != "an-1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestSupervisorSnapshotReadsForeignSession(t *testing.T) {
	fx := newLifecycleFixture(&backendFake{})
	fx.sessions.data["tab-9"] = map[string]string{keyDocumentID: "doc-9"}
	supervisor := NewSupervisor(func(sessionID string) (*Lifecycle, error) {
		return fx.open(sessionID), nil
	}, nil, nil)

	snapshot, err := supervisor.Snapshot(context.Background(), "tab-9")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snapshot.ActiveInWorker || snapshot.DocumentID != "doc-9" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	if _, err := supervisor.Snapshot(context.Background(), "missing"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupervisorRejectsEventWithoutDocument(t *testing.T) {
	supervisor := NewSupervisor(func(string) (*Lifecycle, error) { return nil, nil }, nil, nil)
	err := supervisor.HandleDocumentUploaded(context.Background(), domain.LifecycleEvent{SessionID: "tab-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSupervisorLeavesDrivenUploadToOriginSession(t *testing.T) {
	backend := &backendFake{
		uploadReceipt: &domain.UploadReceipt{DocumentID: "doc-1"},
		statuses:      []statusReply{completed(4)},
		startResult:   &domain.AnalysisStart{AnalysisID: "an-1"},
		reports:       []reportReply{reportWith(domain.RawOutcome{Status: domain.ComplianceFull})},
	}
	fx := newLifecycleFixture(backend)
	runs := &sessionRunObserverFake{}
	supervisor := NewSupervisor(func(sessionID string) (*Lifecycle, error) {
		return fx.open(sessionID), nil
	}, runs, nil)

	if _, err := fx.open("tab-1").Run(context.Background(), uploadFile("moe.pdf", "%PDF"), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	uploaded, ok := fx.events.last(domain.EventDocumentUploaded)
	if !ok || !uploaded.Driven {
		t.Fatalf("expected a driven upload event, got %+v", uploaded)
	}

	if err := supervisor.HandleDocumentUploaded(context.Background(), uploaded); err != nil {
		t.Fatalf("HandleDocumentUploaded() error = %v", err)
	}
	if _, starts, _ := backend.counters(); starts != 1 {
		t.Fatalf("expected one analysis start, got %d", starts)
	}
	if runs.started != 0 || len(supervisor.Sessions()) != 0 {
		t.Fatalf("expected no worker session, got %v", supervisor.Sessions())
	}
}

func TestSupervisorAdoptsAnalysisOfOriginSession(t *testing.T) {
	backend := &backendFake{
		reports: []reportReply{reportWith(domain.RawOutcome{Status: domain.CompliancePartial})},
	}
	fx := newLifecycleFixture(backend)
	fx.sessions.data["tab-1"] = map[string]string{keyDocumentID: "doc-1", keyAnalysisID: "an-7"}
	supervisor := NewSupervisor(func(sessionID string) (*Lifecycle, error) {
		return fx.open(sessionID), nil
	}, nil, nil)

	err := supervisor.HandleDocumentUploaded(context.Background(), domain.LifecycleEvent{
		Type:       domain.EventDocumentUploaded,
		SessionID:  "tab-1",
		DocumentID: "doc-1",
	})
	if err != nil {
		t.Fatalf("HandleDocumentUploaded() error = %v", err)
	}

	status, starts, _ := backend.counters()
	if starts != 0 || status != 0 {
		t.Fatalf("expected readiness only, got %d status calls and %d starts", status, starts)
	}
	if got := fx.sessions.value(WorkerSessionID("doc-1"), keyAnalysisID); got != "an-7" {
		t.Fatalf("expected worker session to hold an-7, got %q", got)
	}
}
