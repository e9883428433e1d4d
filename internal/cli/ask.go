package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askK    int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the guidelines",
	Long: `Initialize the system, then answer the question with the LLM using the
most similar guideline passages as context. The sources are listed after
the answer. Page numbers are 1-based, as printed by PDF viewers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "sources", "k", 0, "number of source passages (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	if msg := qaService.InitializeSystem(ctx); !msg.OK {
		return errors.New(msg.Message)
	}

	k := askK
	if !cmd.Flags().Changed("sources") {
		k, _ = qaService.SourceLimits()
	}

	answer := qaService.AnswerQuestion(ctx, question, k)

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), answer.Formatted)
	}

	if answer.IsError {
		return fmt.Errorf("question failed: %s", answer.ErrorKind)
	}
	return nil
}
