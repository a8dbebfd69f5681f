package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sitamcp "github.com/ppiankov/sitaware/internal/mcp"
)

var mcpResume string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpResume, "resume", "", "Continue a stored session by ID instead of bootstrapping")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs sitaware as an MCP (Model Context Protocol) server over stdio.\nExposes tools: sitaware_evaluate, sitaware_verdict, sitaware_session.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, mcpResume)
	if err != nil {
		return err
	}

	srv, err := sitamcp.New(rt.evaluator, version, logger)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create MCP server: %w", err), rt.Close(context.WithoutCancel(ctx)))
	}

	fmt.Fprintf(os.Stderr, "sitaware MCP server running on stdio (session %s)\n", rt.session.ID())

	runErr := srv.Run(ctx)
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}
