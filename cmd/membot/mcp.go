package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/membot/internal/memorytools"
	"github.com/flemzord/membot/pkg/app"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdio",
		Long: "Serve the memory store as MCP tools on stdin/stdout. Logs go to\n" +
			"stderr so they never corrupt the protocol stream.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(cmd, flags, func(ctx context.Context, inst *app.Instance) error {
				srv := memorytools.New(inst.Memory, inst.Settings, version, inst.Logger)
				inst.Logger.Info("mcp server ready", "tools", 6)
				return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
			})
		},
	}
}
