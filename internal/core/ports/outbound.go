package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// ComplianceBackend is the remote document-compliance pipeline.
type ComplianceBackend interface {
	UploadDocument(ctx context.Context, filename string, body io.Reader) (*domain.UploadReceipt, error)
	GetDocumentStatus(ctx context.Context, documentID string) (*domain.DocumentStatus, error)
	StartAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisStart, error)
	GetAnalysisReport(ctx context.Context, analysisID string) (*domain.AnalysisReport, error)
	ListOutcomes(ctx context.Context, query domain.PageQuery) (*domain.Page[domain.RawOutcome], error)
}

// SessionBackend is the durable key/value mirror of one client session.
// Apply must write all sets and unsets of one call atomically.
type SessionBackend interface {
	Load(ctx context.Context, sessionID string) (map[string]string, error)
	Apply(ctx context.Context, sessionID string, set map[string]string, unset []string) error
	Drop(ctx context.Context, sessionID string) error
}

// EventPublisher emits lifecycle events for other processes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}

// EventSubscriber consumes lifecycle events of one type.
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType domain.LifecycleEventType, handler func(context.Context, domain.LifecycleEvent) error) error
}

// FileInspector validates a file before it is sent to the backend.
type FileInspector interface {
	Inspect(name string, body io.ReaderAt, size int64) (domain.FileInfo, error)
}

// OutcomeExporter writes a full outcome set to an external format.
type OutcomeExporter interface {
	Export(w io.Writer, analysisID string, outcomes []domain.ComplianceOutcome, counts domain.StatusCounts) error
}

// PipelineObserver receives loop and sequencing telemetry.
type PipelineObserver interface {
	ObservePoll(loop string, err error)
	ObserveLoopFinished(loop string, state domain.LoopState)
	ObserveStaleResponse(channel string)
}

// Clock abstracts time for the polling loops.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
