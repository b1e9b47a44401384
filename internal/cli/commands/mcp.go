package commands

import (
	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/mcp"
)

func newMCPCmd(e *env) *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve repository state over the Model Context Protocol",
		Long: `Start an MCP server exposing refs, status, worktrees and merges as tools.
The stdio transport serves one client on stdin/stdout; http serves SSE on
/sse and /message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(c, transport, port)
			if err != nil {
				return err
			}
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport (stdio, http)")
	cmd.Flags().IntVar(&port, "port", 3000, "Port for the http transport")
	return cmd
}
