package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	tfmcp "github.com/valter-silva-au/taskflow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the taskflow MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskflow MCP server on stdio",
	Long: `Start the taskflow MCP server on stdio transport.

Tools: process_tasks, query_tasks, get_task, add_comment, update_task,
get_metrics, get_alerts.
Resources: notion://tasks/ready, notion://tasks/in-progress,
notion://tasks/with-mcp-tags and notion://task/{id}.
Prompts: one per workflow action, e.g. interrogate_task and critique_task.

Logs go to stderr or the configured log file; stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireStore(); err != nil {
			return err
		}

		deps := tfmcp.Deps{
			Store:   Store,
			Engine:  Engine,
			Metrics: MetricsCalc,
			Alerts:  AlertEngine,
			Logger:  Logger,
		}
		if Images != nil {
			deps.Images = core.ImageFetcher(Images)
		}
		srv := tfmcp.NewServer(deps, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
