package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
)

var (
	analyzeWait bool

	outcomesPage         int
	outcomesSize         int
	outcomesStatus       string
	outcomesFindingLevel string
	outcomesInteractive  bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(outcomesCmd)
	rootCmd.AddCommand(countsCmd)
	rootCmd.AddCommand(exportCmd)

	analyzeCmd.Flags().BoolVar(&analyzeWait, "wait", false, "wait until the report has outcomes")

	outcomesCmd.Flags().IntVar(&outcomesPage, "page", 0, "zero-based page index")
	outcomesCmd.Flags().IntVar(&outcomesSize, "size", 0, "page size (defaults to PAGE_SIZE)")
	outcomesCmd.Flags().StringVar(&outcomesStatus, "status", "all", "full, partial, non or all")
	outcomesCmd.Flags().StringVar(&outcomesFindingLevel, "finding-level", "", "only outcomes with this finding level")
	outcomesCmd.Flags().BoolVarP(&outcomesInteractive, "interactive", "i", false, "browse pages and filters from stdin")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Start a compliance analysis of the current document",
	Long: `Start a compliance analysis of the current document. The document must
have finished ingestion. A regulation must be configured through
DEFAULT_REGULATION_ID unless REGULATION_AUTO_SELECT is enabled.

Examples:
  compliancectl analyze
  compliancectl analyze --wait`,
	RunE: runAnalyze,
}

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List one page of outcomes of the current analysis",
	Long: `List one page of outcomes of the current analysis.

With --interactive the command reads browse commands from stdin: n and p
move between pages, s and f change the filters and jump back to the first
page, v marks a requirement as viewed. Type h for the full list.

Examples:
  compliancectl outcomes --status non
  compliancectl outcomes -i`,
	RunE: runOutcomes,
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show outcome counts per compliance status",
	RunE:  runCounts,
}

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write every outcome of the current analysis to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	analysisID, task, err := env.lifecycle.StartAnalysis(cmd.Context())
	if err != nil {
		return err
	}
	if !analyzeWait {
		task.Cancel()
		return printResult(cmd, map[string]string{"analysis_id": analysisID}, fmt.Sprintf("analysis %s started\n", analysisID))
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "analysis %s started, waiting for outcomes\n", analysisID)
	report, err := task.Wait(cmd.Context())
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func runOutcomes(cmd *cobra.Command, _ []string) error {
	analysisID, err := env.lifecycle.Identity().RequireAnalysisID()
	if err != nil {
		return err
	}
	status, err := domain.ParseComplianceStatus(outcomesStatus)
	if err != nil {
		return err
	}

	if outcomesInteractive {
		if outcomesSize > 0 {
			return fmt.Errorf("--size is not supported with --interactive, set PAGE_SIZE")
		}
		return browseOutcomes(
			cmd.Context(),
			env.app.Outcomes.NewView(analysisID),
			usecase.OutcomeFilter{Status: status, FindingLevel: outcomesFindingLevel},
			outcomesPage,
			cmd.InOrStdin(),
			cmd.OutOrStdout(),
		)
	}

	page, err := env.app.Outcomes.Page(cmd.Context(), domain.PageQuery{
		AnalysisID:   analysisID,
		Page:         outcomesPage,
		Size:         outcomesSize,
		Status:       status,
		FindingLevel: outcomesFindingLevel,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), page)
	}
	return writeOutcomeTable(cmd.OutOrStdout(), page)
}

func runCounts(cmd *cobra.Command, _ []string) error {
	analysisID, err := env.lifecycle.Identity().RequireAnalysisID()
	if err != nil {
		return err
	}
	counts, ok := env.app.Outcomes.Counts(cmd.Context(), analysisID)
	if !ok {
		fmt.Fprintln(cmd.ErrOrStderr(), "counts unavailable, showing zeros")
	}
	return printResult(cmd, counts, formatCounts(counts))
}

func runExport(cmd *cobra.Command, args []string) error {
	analysisID, err := env.lifecycle.Identity().RequireAnalysisID()
	if err != nil {
		return err
	}
	path := args[0]
	if filepath.Ext(path) == "" {
		path += ".xlsx"
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	counts, err := env.app.ExportUC.Export(cmd.Context(), analysisID, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", path, closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return printResult(cmd, counts, fmt.Sprintf("wrote %d outcomes to %s\n", counts.Total(), path))
}
