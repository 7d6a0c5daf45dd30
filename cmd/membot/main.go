// Package main is the entry point for the membot CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/membot/internal/config"
	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that builds the application.
type globalFlags struct {
	config    string
	dataDir   string
	logLevel  string
	logFormat string
}

func (g *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath: g.config,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    g.dataDir,
		LogLevel:   g.logLevel,
		LogFormat:  g.logFormat,
	}
}

func rootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "membot",
		Short:         "A Discord bot with long-term conversational memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Path to membot.yaml")
	pf.StringVar(&flags.dataDir, "data-dir", "", "Override the data directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		versionCmd(),
		startCmd(&flags),
		configCmd(&flags),
		initCmd(),
		memoryCmd(&flags),
		mcpCmd(&flags),
		serviceCmd(&flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "membot %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start membot with all configured modules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.params())
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := flags.params()
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			params.LogOutput = io.Discard

			inst, err := app.Build(params)
			if err != nil {
				return err
			}
			defer inst.Discard()

			ids := config.Resolve(inst.Config)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", inst.ConfigPath, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Settings: %s\n", inst.Settings.Path())
			fmt.Fprintf(out, "Memory:   %s\n", availability(inst.Memory.Available()))
			return nil
		},
	})
	return cmd
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable (replies will not use memory)"
}
