package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type AnalysisSettings struct {
	RegulationID      string
	RegulationVersion string
	// AutoSelect lets the backend choose the regulation when none is configured.
	AutoSelect bool
}

type StartAnalysisUseCase struct {
	backend  ports.ComplianceBackend
	identity *IdentityStore
	events   ports.EventPublisher
	settings AnalysisSettings
	clock    ports.Clock
	logger   *slog.Logger
}

func NewStartAnalysisUseCase(
	backend ports.ComplianceBackend,
	identity *IdentityStore,
	events ports.EventPublisher,
	settings AnalysisSettings,
	clock ports.Clock,
	logger *slog.Logger,
) *StartAnalysisUseCase {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StartAnalysisUseCase{
		backend:  backend,
		identity: identity,
		events:   events,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// StartAnalysis triggers an analysis for the current document once it has
// finished ingestion, and persists the returned analysis id. It does not
// wait for the analysis to produce results.
func (uc *StartAnalysisUseCase) StartAnalysis(ctx context.Context) (string, error) {
	if !uc.settings.AutoSelect && uc.settings.RegulationID == "" {
		return "", domain.WrapError(domain.ErrConfiguration, "start analysis", errors.New("no regulation configured"))
	}

	documentID, err := uc.identity.RequireDocumentID()
	if err != nil {
		return "", err
	}

	status, err := uc.backend.GetDocumentStatus(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("check document status: %w", err)
	}
	if status.Status != domain.StatusCompleted {
		return "", domain.WrapError(
			domain.ErrNotReady,
			"start analysis",
			fmt.Errorf("document %s is %s", documentID, status.Status),
		)
	}

	started, err := uc.backend.StartAnalysis(ctx, domain.AnalysisRequest{
		DocumentID:        documentID,
		RegulationID:      uc.settings.RegulationID,
		RegulationVersion: uc.settings.RegulationVersion,
	})
	if err != nil {
		return "", fmt.Errorf("start analysis: %w", err)
	}
	if started == nil || started.AnalysisID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "start analysis", errors.New("response carries no analysis id"))
	}

	if err := uc.identity.SetAnalysisIDFor(ctx, documentID, started.AnalysisID); err != nil {
		return "", err
	}

	uc.logger.Info("analysis_started",
		"session_id", uc.identity.SessionID(),
		"document_id", documentID,
		"analysis_id", started.AnalysisID,
		"message", started.Message,
	)
	publishEvent(ctx, uc.events, uc.logger, domain.LifecycleEvent{
		Type:       domain.EventAnalysisStarted,
		SessionID:  uc.identity.SessionID(),
		DocumentID: documentID,
		AnalysisID: started.AnalysisID,
		At:         uc.clock.Now().UTC(),
	})

	return started.AnalysisID, nil
}
