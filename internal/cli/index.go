package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/medguide-qa/internal/service"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or load the vector index",
	Long: `Load the persisted vector index, building it from the PDF directory
when none exists. With --force the whole corpus is re-embedded.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "rebuild even if an index exists")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := service.WithProgress(cmd.Context(), func(p service.Progress) {
		if p.Total > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%-10s %d/%d\n", p.Stage, p.Done, p.Total)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", p.Stage)
		}
	})

	if indexForce {
		msg := qaService.Rebuild(ctx)
		return statusError(cmd, msg.OK, msg.Message)
	}
	msg := qaService.InitializeSystem(ctx)
	return statusError(cmd, msg.OK, msg.Message)
}
