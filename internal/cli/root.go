// Package cli implements the medguide command line: the web server, the MCP
// server and one-shot indexing and question commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/medguide-qa/internal/middleware"
	"github.com/arturoeanton/medguide-qa/internal/port"
	"github.com/arturoeanton/medguide-qa/pkg/config"
)

var (
	cfgFile string
	verbose bool

	// Wired by setup; tests assign them directly.
	cfg       *config.Config
	qaService port.QAService
	auditor   middleware.AuditWriter
	closers   []func() error
)

var rootCmd = &cobra.Command{
	Use:   "medguide",
	Short: "Question answering over medical guideline PDFs",
	Long: `medguide indexes a directory of clinical guideline PDFs and answers
questions about them with a local or cloud LLM, citing file and page
for every source it used.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { shutdown() },
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default $CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if qaService != nil {
		return nil
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), c.LogLevel, c.LogFormat, verbose))

	rt, err := bootstrap(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("starting medguide: %w", err)
	}

	cfg = c
	qaService = rt.qa
	auditor = rt.auditor
	closers = rt.closers
	return nil
}

func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
	closers = nil
}

// statusError turns a failed status message into a command error so the
// process exits non-zero.
func statusError(cmd *cobra.Command, ok bool, message string) error {
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), message)
		return nil
	}
	return errors.New(message)
}
