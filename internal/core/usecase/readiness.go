package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type ReadinessConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// MaxAttempts bounds the number of report fetches. Zero means unbounded.
	MaxAttempts int
}

// ReadinessDetector polls the analysis report until it has outcomes.
type ReadinessDetector struct {
	backend  ports.ComplianceBackend
	clock    ports.Clock
	observer ports.PipelineObserver
	cfg      ReadinessConfig
	logger   *slog.Logger
}

func NewReadinessDetector(
	backend ports.ComplianceBackend,
	clock ports.Clock,
	observer ports.PipelineObserver,
	cfg ReadinessConfig,
	logger *slog.Logger,
) *ReadinessDetector {
	if clock == nil {
		clock = SystemClock()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &ReadinessDetector{
		backend:  backend,
		clock:    clock,
		observer: observer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (d *ReadinessDetector) Watch(ctx context.Context, analysisID string) *Task[*domain.AnalysisReport] {
	onFinish := func(state domain.LoopState) {
		d.observer.ObserveLoopFinished(loopReadiness, state)
	}
	return startTask(ctx, onFinish, func(ctx context.Context, _ *liveness) (*domain.AnalysisReport, error) {
		return d.poll(ctx, analysisID)
	})
}

func (d *ReadinessDetector) poll(ctx context.Context, analysisID string) (*domain.AnalysisReport, error) {
	started := d.clock.Now()

	for attempt := 1; ; attempt++ {
		report, err := d.backend.GetAnalysisReport(ctx, analysisID)
		d.observer.ObservePoll(loopReadiness, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		switch {
		case err != nil:
			if domain.IsKind(err, domain.ErrNotFound) {
				d.logger.Debug("analysis_report_not_found", "analysis_id", analysisID, "attempt", attempt)
			} else {
				d.logger.Warn("analysis_report_poll_error", "analysis_id", analysisID, "attempt", attempt, "error", err)
			}
		case strings.EqualFold(report.Status, string(domain.StatusFailed)):
			return report, domain.NewProcessingFailed("analysis", "analysis "+analysisID+" failed")
		case len(report.Compliance) > 0:
			return report, nil
		}

		if d.cfg.MaxAttempts > 0 && attempt >= d.cfg.MaxAttempts {
			return nil, domain.WrapError(
				domain.ErrPollTimeout,
				"poll analysis report",
				fmt.Errorf("analysis %s has no outcomes after %d attempts", analysisID, attempt),
			)
		}
		if d.cfg.Timeout > 0 && d.clock.Now().Sub(started) >= d.cfg.Timeout {
			return nil, domain.WrapError(
				domain.ErrPollTimeout,
				"poll analysis report",
				fmt.Errorf("analysis %s has no outcomes after %s", analysisID, d.cfg.Timeout),
			)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.clock.After(d.cfg.Interval):
		}
	}
}
