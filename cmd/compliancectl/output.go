package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
)

// progressPrinter writes one line per distinct progress value.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) Print(progress domain.Progress) {
	line := formatProgress(progress)
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.w, line)
}

func formatProgress(progress domain.Progress) string {
	if progress.Estimated {
		return fmt.Sprintf("ingesting ~%d%%", progress.Percent)
	}
	if progress.Status == domain.StatusCompleted {
		return "ingesting 100% done"
	}
	return fmt.Sprintf("ingesting %d%%", progress.Percent)
}

func formatCounts(counts domain.StatusCounts) string {
	return fmt.Sprintf("full: %d  partial: %d  non: %d  total: %d\n",
		counts.Full, counts.Partial, counts.Non, counts.Total())
}

func writeOutcomeTable(w io.Writer, page *domain.Page[domain.ComplianceOutcome]) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUIREMENT\tSTATUS\tFINDING\tEVIDENCE\tMISSING")
	for _, outcome := range page.Content {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			outcome.RequirementID,
			outcome.Status,
			orDash(outcome.FindingLevel),
			len(outcome.Evidence),
			orDash(strings.Join(outcome.MissingElements, "; ")),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%d outcomes)\n", page.Number+1, max(page.TotalPages, 1), page.TotalElements)
	return err
}

func printReport(cmd *cobra.Command, report *domain.AnalysisReport) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	var counts domain.StatusCounts
	for _, outcome := range usecase.NormalizeOutcomes(report.Compliance) {
		counts.Add(outcome.Status)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "analysis %s ready\n%s", report.AnalysisID, formatCounts(counts))
	return err
}

func printResult(cmd *cobra.Command, payload any, text string) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), payload)
	}
	_, err := io.WriteString(cmd.OutOrStdout(), text)
	return err
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
