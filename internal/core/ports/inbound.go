package ports

import (
	"context"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// DocumentUploader is the inbound contract for document upload.
type DocumentUploader interface {
	Upload(ctx context.Context, file domain.UploadFile) (*domain.UploadReceipt, error)
}

// AnalysisStarter triggers an analysis for the current document.
type AnalysisStarter interface {
	StartAnalysis(ctx context.Context) (string, error)
}

// OutcomeReader is the inbound read model for analysis outcomes.
type OutcomeReader interface {
	Counts(ctx context.Context, analysisID string) (domain.StatusCounts, bool)
	Page(ctx context.Context, query domain.PageQuery) (*domain.Page[domain.ComplianceOutcome], error)
	All(ctx context.Context, analysisID string) ([]domain.ComplianceOutcome, error)
}

// SessionReader exposes session snapshots to the HTTP surface.
type SessionReader interface {
	Snapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error)
	Sessions() []string
}
