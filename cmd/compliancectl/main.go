// Package main implements compliancectl, the command-line client for the
// document-compliance pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-pipeline-client/internal/bootstrap"
	"github.com/kirillkom/compliance-pipeline-client/internal/config"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
	"github.com/kirillkom/compliance-pipeline-client/internal/observability/logging"
)

const serviceName = "compliancectl"

var (
	version = "dev"

	// sessionFlag overrides SESSION_ID.
	sessionFlag string
	jsonOutput  bool

	env *cliEnv
)

// cliEnv is built once per invocation before any subcommand runs.
type cliEnv struct {
	app       *bootstrap.App
	lifecycle *usecase.Lifecycle
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if env != nil {
		env.lifecycle.Cancel()
		env.app.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "compliancectl",
	Short: "Drive documents through the compliance pipeline",
	Long: `compliancectl uploads documents to the compliance backend, follows their
ingestion, triggers analyses and reads the resulting outcomes.

The current document and analysis ids are remembered per session, so a
later invocation can resume where an earlier one stopped.

Examples:
  # Upload, analyse and wait for the report in one go
  compliancectl run manual.pdf

  # Pick up an interrupted session
  compliancectl resume --session tab-2

  # Page through non-compliant outcomes
  compliancectl outcomes --status non --page 1`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session id (defaults to SESSION_ID)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewTextLogger(cmd.ErrOrStderr(), serviceName, cfg.LogLevel)

	app, err := bootstrap.New(cmd.Context(), cfg, serviceName, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	sessionID := cfg.SessionID
	if sessionFlag != "" {
		sessionID = sessionFlag
	}
	lifecycle, err := app.NewLifecycle(sessionID)
	if err != nil {
		app.Close()
		return err
	}
	if err := lifecycle.Hydrate(cmd.Context()); err != nil {
		app.Close()
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	env = &cliEnv{app: app, lifecycle: lifecycle}
	return nil
}
