package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

const (
	SheetOutcomes = "Outcomes"
	SheetSummary  = "Summary"
)

var outcomeHeader = []any{
	"Requirement",
	"Status",
	"Finding level",
	"Justification",
	"Evidence",
	"Missing elements",
	"Recommended actions",
}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Export writes one row per outcome on the Outcomes sheet and the status
// tally on the Summary sheet.
func (e *Exporter) Export(w io.Writer, analysisID string, outcomes []domain.ComplianceOutcome, counts domain.StatusCounts) error {
	book := excelize.NewFile()
	defer func() {
		_ = book.Close()
	}()

	if err := book.SetSheetName(book.GetSheetName(0), SheetOutcomes); err != nil {
		return fmt.Errorf("rename outcomes sheet: %w", err)
	}
	if err := setRow(book, SheetOutcomes, 1, outcomeHeader); err != nil {
		return err
	}
	for i, outcome := range outcomes {
		if err := setRow(book, SheetOutcomes, i+2, outcomeRow(outcome)); err != nil {
			return err
		}
	}
	if err := book.SetPanes(SheetOutcomes, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze outcomes header: %w", err)
	}

	if _, err := book.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Analysis", analysisID},
		{"Full", counts.Full},
		{"Partial", counts.Partial},
		{"Non", counts.Non},
		{"Total", counts.Total()},
	}
	for i, row := range summary {
		if err := setRow(book, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func outcomeRow(outcome domain.ComplianceOutcome) []any {
	excerpts := make([]string, 0, len(outcome.Evidence))
	for _, ev := range outcome.Evidence {
		excerpts = append(excerpts, ev.RelevantExcerpt)
	}
	return []any{
		outcome.RequirementID,
		string(outcome.Status),
		outcome.FindingLevel,
		outcome.Justification,
		strings.Join(excerpts, "\n"),
		strings.Join(outcome.MissingElements, "\n"),
		strings.Join(outcome.RecommendedActions, "\n"),
	}
}

func setRow(book *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := book.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
