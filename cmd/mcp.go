package cmd

import (
	"github.com/spf13/cobra"

	"github.com/anspn/iota-service/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents start, end, and inspect recorded sessions
natively. Configure in the agent's MCP settings with:

  {
    "mcpServers": {
      "iotas": { "command": "iotas", "args": ["mcp"] }
    }
  }

Available tools: iotas_start_session, iotas_end_session, iotas_get_session,
iotas_list_sessions, iotas_session_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		return mcp.NewServer(m).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
