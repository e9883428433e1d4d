package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var docsJSON bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List the PDFs in the document directory",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

var addCmd = &cobra.Command{
	Use:   "add [pdf]",
	Short: "Add a PDF to the corpus and rebuild the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted index and model configuration",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	docsCmd.Flags().BoolVar(&docsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(docsCmd, addCmd, statusCmd)
}

func runDocs(cmd *cobra.Command, _ []string) error {
	docs := qaService.ListDocuments(cmd.Context())

	if docsJSON {
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No PDF files found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSIZE (MB)\tMODIFIED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", d.Name, d.SizeMB, d.ModTime.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if msg := qaService.InitializeSystem(ctx); !msg.OK {
		return errors.New(msg.Message)
	}
	msg := qaService.AddDocument(ctx, args[0])
	return statusError(cmd, msg.OK, msg.Message)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st := qaService.Status(cmd.Context())
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "State:           %s\n", st.State)
	fmt.Fprintf(out, "Documents:       %d\n", st.Documents)
	fmt.Fprintf(out, "Embedding model: %s\n", st.EmbeddingModel)
	fmt.Fprintf(out, "LLM model:       %s\n", st.LLMModel)
	fmt.Fprintf(out, "Index backend:   %s\n", st.Index.Backend)
	if st.Index.Count > 0 {
		fmt.Fprintf(out, "Chunks:          %d (dimension %d)\n", st.Index.Count, st.Index.Dimension)
		fmt.Fprintf(out, "Generation:      %s\n", st.Index.Generation)
		fmt.Fprintf(out, "Built at:        %s\n", st.Index.BuiltAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
