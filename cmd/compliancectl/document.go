package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
)

var uploadWait bool

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(waitCmd)

	uploadCmd.Flags().BoolVar(&uploadWait, "wait", false, "wait until ingestion finishes")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a .pdf or .docx document",
	Long: `Upload a document and make it the session's current document.
Any analysis remembered for the previous document is forgotten.

Examples:
  compliancectl upload manual.pdf
  compliancectl upload manual.docx --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch the ingestion status of the current document once",
	RunE:  runStatus,
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the current document finishes ingestion",
	RunE:  runWait,
}

func runUpload(cmd *cobra.Command, args []string) error {
	file, closeFile, err := openUpload(args[0])
	if err != nil {
		return err
	}
	defer closeFile()

	printer := newProgressPrinter(cmd.OutOrStdout())
	receipt, task, err := env.lifecycle.Upload(cmd.Context(), file, printer.Print)
	if err != nil {
		return err
	}
	if !uploadWait {
		task.Cancel()
		return printResult(cmd, receipt, fmt.Sprintf("uploaded %s as document %s\n", receipt.FileName, receipt.DocumentID))
	}

	status, err := task.Wait(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(cmd, status, fmt.Sprintf("document %s is %s\n", status.DocumentID, status.Status))
}

func runStatus(cmd *cobra.Command, _ []string) error {
	documentID, err := env.lifecycle.Identity().RequireDocumentID()
	if err != nil {
		return err
	}
	status, err := env.app.Backend.GetDocumentStatus(cmd.Context(), documentID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("document %s: %s %d%% (%d/%d paragraphs)\n",
		status.DocumentID, status.Status, status.RawProgress(), status.EmbeddedParagraphs, status.TotalParagraphs)
	if status.ErrorMessage != "" {
		text += fmt.Sprintf("error: %s\n", status.ErrorMessage)
	}
	return printResult(cmd, status, text)
}

func runWait(cmd *cobra.Command, _ []string) error {
	documentID, err := env.lifecycle.Identity().RequireDocumentID()
	if err != nil {
		return err
	}
	printer := newProgressPrinter(cmd.OutOrStdout())
	task := env.lifecycle.WatchDocument(cmd.Context(), documentID, usecase.WatchOptions{
		Placeholder: true,
		OnProgress:  printer.Print,
	})
	status, err := task.Wait(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(cmd, status, fmt.Sprintf("document %s is %s\n", status.DocumentID, status.Status))
}

func openUpload(path string) (domain.UploadFile, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.UploadFile{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return domain.UploadFile{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return domain.UploadFile{Name: info.Name(), Size: info.Size(), Content: f}, func() { _ = f.Close() }, nil
}
