package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(sessionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Upload a document and follow it until the report is ready",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipeline,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue the session from its persisted stage",
	Long: `Continue the session from its persisted stage: follow the analysis if one
is remembered, otherwise follow the document's ingestion, start the
analysis and wait for its outcomes.`,
	RunE: runResume,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the session's document and analysis",
	RunE:  runReset,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the session's remembered identities",
	RunE:  runSession,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	file, closeFile, err := openUpload(args[0])
	if err != nil {
		return err
	}
	defer closeFile()

	printer := newProgressPrinter(cmd.OutOrStdout())
	report, err := env.lifecycle.Run(cmd.Context(), file, printer.Print)
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func runResume(cmd *cobra.Command, _ []string) error {
	printer := newProgressPrinter(cmd.OutOrStdout())
	report, err := env.lifecycle.Resume(cmd.Context(), usecase.ResumeOptions{
		Placeholder: true,
		OnProgress:  printer.Print,
	})
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if err := env.lifecycle.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", env.lifecycle.Identity().SessionID())
	return nil
}

func runSession(cmd *cobra.Command, _ []string) error {
	snapshot := env.lifecycle.Snapshot()
	text := fmt.Sprintf("session:  %s\ndocument: %s\nanalysis: %s\n",
		snapshot.SessionID, orDash(snapshot.DocumentID), orDash(snapshot.AnalysisID))
	return printResult(cmd, snapshot, text)
}
