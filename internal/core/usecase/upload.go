package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type UploadDocumentUseCase struct {
	backend   ports.ComplianceBackend
	inspector ports.FileInspector
	identity  *IdentityStore
	events    ports.EventPublisher
	clock     ports.Clock
	logger    *slog.Logger
}

func NewUploadDocumentUseCase(
	backend ports.ComplianceBackend,
	inspector ports.FileInspector,
	identity *IdentityStore,
	events ports.EventPublisher,
	clock ports.Clock,
	logger *slog.Logger,
) *UploadDocumentUseCase {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadDocumentUseCase{
		backend:   backend,
		inspector: inspector,
		identity:  identity,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

type UploadOptions struct {
	// Driven is set when the caller starts the analysis itself, so workers
	// listening for uploads leave the document alone.
	Driven bool
}

// Upload validates and submits a file. On success the returned document id
// is the session's current document and any previous analysis is dropped.
// On failure nothing is persisted.
func (uc *UploadDocumentUseCase) Upload(ctx context.Context, file domain.UploadFile, opts UploadOptions) (*domain.UploadReceipt, error) {
	if file.Content == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("no file selected"))
	}

	info, err := uc.inspector.Inspect(file.Name, file.Content, file.Size)
	if err != nil {
		return nil, err
	}

	body := io.NewSectionReader(file.Content, 0, info.Size)
	receipt, err := uc.backend.UploadDocument(ctx, info.Name, body)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	if receipt == nil || receipt.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("response carries no document id"))
	}

	if err := uc.identity.SetDocumentID(ctx, receipt.DocumentID); err != nil {
		return nil, err
	}

	uc.logger.Info("document_uploaded",
		"session_id", uc.identity.SessionID(),
		"document_id", receipt.DocumentID,
		"file_name", info.Name,
		"file_size", info.Size,
		"page_count", info.PageCount,
	)
	publishEvent(ctx, uc.events, uc.logger, domain.LifecycleEvent{
		Type:       domain.EventDocumentUploaded,
		SessionID:  uc.identity.SessionID(),
		DocumentID: receipt.DocumentID,
		Driven:     opts.Driven,
		At:         uc.clock.Now().UTC(),
	})

	return receipt, nil
}

// publishEvent never fails the caller; lifecycle events are best effort.
func publishEvent(ctx context.Context, events ports.EventPublisher, logger *slog.Logger, event domain.LifecycleEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("lifecycle_event_publish_failed",
			"type", string(event.Type),
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}
