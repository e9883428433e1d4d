package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/medguide-qa/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query the
guidelines.

By default the server communicates over stdio. Use --port to serve the
streamable HTTP transport on /mcp instead. Neither transport is
authenticated: add_document only reads PDFs under MCP_UPLOAD_ROOT and is
disabled when it is unset.

Examples:
  # Stdio mode (for desktop assistants)
  medguide mcp

  # HTTP mode
  medguide mcp --port 7861`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := mcp.NewServer(qaService, auditor, mcp.WithUploadRoot(cfg.MCPUploadRoot))
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s/mcp\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}
	return server.Run(cmd.Context())
}
