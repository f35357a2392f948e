package cli

import (
	"context"
	"fmt"

	"github.com/neilberkman/studychat/cmd/studychat/mcp"
	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/sessions"
	"github.com/neilberkman/studychat/internal/core/storage"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server for read-only access to chat history",
	Long: `Start an MCP (Model Context Protocol) server that lets an assistant
list, read and search your study chat sessions.

Configure in your MCP client's config file:
  {
    "mcpServers": {
      "studychat": {
        "command": "studychat",
        "args": ["serve-mcp"]
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := storage.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	load := func(ctx context.Context) ([]models.Session, error) {
		return sessions.Load(ctx, st.KV, cfg.StorageKey)
	}
	client := backend.New(cfg.BackendURL)

	if err := mcp.StartServer(load, st.DB, client.DownloadURL, rootCmd.Version); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
