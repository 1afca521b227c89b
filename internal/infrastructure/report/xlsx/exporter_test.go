package xlsx

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

func TestExportWritesOutcomesAndSummary(t *testing.T) {
	outcomes := []domain.ComplianceOutcome{
		{
			RequirementID: "145.A.30",
			Status:        domain.ComplianceFull,
			FindingLevel:  "none",
			Justification: "covered",
			Evidence: []domain.Evidence{
				{ParagraphID: 1, RelevantExcerpt: "first"},
				{ParagraphID: 2, RelevantExcerpt: "second"},
			},
			MissingElements:    []string{},
			RecommendedActions: []string{},
		},
		{
			RequirementID:      "145.A.35",
			Status:             domain.ComplianceNone,
			FindingLevel:       "level 1",
			Evidence:           []domain.Evidence{},
			MissingElements:    []string{"training records"},
			RecommendedActions: []string{"add records", "review"},
		},
	}
	counts := domain.StatusCounts{Full: 1, Non: 1}

	var buf bytes.Buffer
	if err := NewExporter().Export(&buf, "an-1", outcomes, counts); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows(SheetOutcomes)
	if err != nil {
		t.Fatalf("GetRows(outcomes) error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Requirement" || rows[1][0] != "145.A.30" || rows[2][1] != "non" {
		t.Fatalf("unexpected outcome rows %v", rows)
	}
	if rows[1][4] != "first\nsecond" {
		t.Fatalf("unexpected evidence cell %q", rows[1][4])
	}
	if rows[2][6] != "add records\nreview" {
		t.Fatalf("unexpected actions cell %q", rows[2][6])
	}

	total, err := book.GetCellValue(SheetSummary, "B5")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if total != "2" {
		t.Fatalf("expected total 2, got %q", total)
	}
	analysis, _ := book.GetCellValue(SheetSummary, "B1")
	if analysis != "an-1" {
		t.Fatalf("expected analysis id in summary, got %q", analysis)
	}
}
