package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

const (
	loopStatus    = "status"
	loopReadiness = "readiness"

	placeholderCap = 90
)

type StatusPollerConfig struct {
	Interval             time.Duration
	Timeout              time.Duration
	MaxConsecutiveErrors int
	PlaceholderStep      int
	PlaceholderInterval  time.Duration
}

func (c StatusPollerConfig) normalize() StatusPollerConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = 5 * time.Second
	}
	if out.MaxConsecutiveErrors <= 0 {
		out.MaxConsecutiveErrors = 5
	}
	if out.PlaceholderStep <= 0 {
		out.PlaceholderStep = 5
	}
	if out.PlaceholderInterval <= 0 {
		out.PlaceholderInterval = 500 * time.Millisecond
	}
	return out
}

type WatchOptions struct {
	// Placeholder emits estimated progress until the first real status arrives.
	Placeholder bool
	OnProgress  func(domain.Progress)
}

// StatusPoller polls document ingestion status until it is terminal.
type StatusPoller struct {
	backend  ports.ComplianceBackend
	clock    ports.Clock
	observer ports.PipelineObserver
	cfg      StatusPollerConfig
	logger   *slog.Logger
}

func NewStatusPoller(
	backend ports.ComplianceBackend,
	clock ports.Clock,
	observer ports.PipelineObserver,
	cfg StatusPollerConfig,
	logger *slog.Logger,
) *StatusPoller {
	if clock == nil {
		clock = SystemClock()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPoller{
		backend:  backend,
		clock:    clock,
		observer: observer,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

// Watch starts the polling loop for documentID. The task resolves with the
// final COMPLETED status or with the failure that ended polling.
func (p *StatusPoller) Watch(ctx context.Context, documentID string, opts WatchOptions) *Task[*domain.DocumentStatus] {
	onFinish := func(state domain.LoopState) {
		p.observer.ObserveLoopFinished(loopStatus, state)
	}
	return startTask(ctx, onFinish, func(ctx context.Context, live *liveness) (*domain.DocumentStatus, error) {
		return p.poll(ctx, live, documentID, opts)
	})
}

func (p *StatusPoller) poll(ctx context.Context, live *liveness, documentID string, opts WatchOptions) (*domain.DocumentStatus, error) {
	// guarded by live.mu
	realSeen := false
	emit := func(progress domain.Progress) {
		live.run(func() {
			if progress.Estimated && realSeen {
				return
			}
			if !progress.Estimated {
				realSeen = true
			}
			if opts.OnProgress != nil {
				opts.OnProgress(progress)
			}
		})
	}

	if opts.Placeholder {
		placeholderCtx, stop := context.WithCancel(ctx)
		placeholderDone := make(chan struct{})
		go func() {
			defer close(placeholderDone)
			p.placeholder(placeholderCtx, emit)
		}()
		defer func() {
			stop()
			<-placeholderDone
		}()
	}

	started := p.clock.Now()
	lastReported := 0
	failures := 0

	for {
		status, err := p.backend.GetDocumentStatus(ctx, documentID)
		p.observer.ObservePoll(loopStatus, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err != nil {
			if domain.IsKind(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("poll document status: %w", err)
			}
			failures++
			p.logger.Warn("status_poll_error",
				"document_id", documentID,
				"consecutive_errors", failures,
				"error", err,
			)
			if failures >= p.cfg.MaxConsecutiveErrors {
				return nil, fmt.Errorf("poll document status: %d consecutive errors: %w", failures, err)
			}
		} else {
			failures = 0
			switch status.Status {
			case domain.StatusCompleted:
				emit(domain.Progress{Percent: 100, Status: status.Status})
				return status, nil
			case domain.StatusFailed:
				return status, domain.NewProcessingFailed("ingestion", status.ErrorMessage)
			default:
				lastReported = max(status.RawProgress(), lastReported)
				emit(domain.Progress{Percent: lastReported, Status: status.Status})
			}
		}

		if p.cfg.Timeout > 0 && p.clock.Now().Sub(started) >= p.cfg.Timeout {
			return nil, domain.WrapError(
				domain.ErrPollTimeout,
				"poll document status",
				fmt.Errorf("document %s not terminal after %s", documentID, p.cfg.Timeout),
			)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

func (p *StatusPoller) placeholder(ctx context.Context, emit func(domain.Progress)) {
	percent := 0
	for percent < placeholderCap {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.cfg.PlaceholderInterval):
		}
		percent = min(percent+p.cfg.PlaceholderStep, placeholderCap)
		emit(domain.Progress{Percent: percent, Estimated: true, Status: domain.StatusProcessing})
	}
}

type noopObserver struct{}

func (noopObserver) ObservePoll(string, error)                    {}
func (noopObserver) ObserveLoopFinished(string, domain.LoopState) {}
func (noopObserver) ObserveStaleResponse(string)                  {}
