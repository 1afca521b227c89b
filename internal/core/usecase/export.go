package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type ExportOutcomesUseCase struct {
	outcomes *OutcomeService
	exporter ports.OutcomeExporter
}

func NewExportOutcomesUseCase(outcomes *OutcomeService, exporter ports.OutcomeExporter) *ExportOutcomesUseCase {
	return &ExportOutcomesUseCase{outcomes: outcomes, exporter: exporter}
}

// Export writes every outcome of the analysis plus its status counts.
func (uc *ExportOutcomesUseCase) Export(ctx context.Context, analysisID string, w io.Writer) (domain.StatusCounts, error) {
	outcomes, err := uc.outcomes.All(ctx, analysisID)
	if err != nil {
		return domain.StatusCounts{}, err
	}

	var counts domain.StatusCounts
	for _, outcome := range outcomes {
		counts.Add(outcome.Status)
	}

	if err := uc.exporter.Export(w, analysisID, outcomes, counts); err != nil {
		return domain.StatusCounts{}, fmt.Errorf("export outcomes: %w", err)
	}
	return counts, nil
}
