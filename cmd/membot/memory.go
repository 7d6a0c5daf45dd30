package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/pkg/app"
)

// withMemory builds an instance with only the memory backend, runs fn
// and shuts it down. Logs default to warn to keep command output clean.
func withMemory(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *app.Instance) error) error {
	params := flags.params()
	params.MemoryOnly = true
	if params.LogLevel == "" {
		params.LogLevel = "warn"
	}
	params.LogOutput = cmd.ErrOrStderr()

	inst, err := app.Build(params)
	if err != nil {
		return err
	}
	if err := inst.Start(); err != nil {
		return err
	}
	defer inst.Shutdown()

	if !inst.Memory.Available() {
		return errors.New("memory backend unavailable: configure memory.sqlite in membot.yaml")
	}
	return fn(cmd.Context(), inst)
}

func memoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and curate what the bot remembers",
	}
	cmd.AddCommand(
		memoryStatsCmd(flags),
		memoryFactsCmd(flags),
		memoryClearCmd(flags),
		memoryPruneCmd(flags),
	)
	return cmd
}

func memoryStatsCmd(flags *globalFlags) *cobra.Command {
	var guildID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(cmd, flags, func(ctx context.Context, inst *app.Instance) error {
				st, res := inst.Memory.Stats(ctx, guildID)
				if !res.OK {
					return res.Err
				}
				printStats(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Restrict to one guild")
	return cmd
}

func printStats(w io.Writer, st memory.Stats) {
	fmt.Fprintf(w, "Facts:        %d\n", st.TotalFacts)
	fmt.Fprintf(w, "Memories:     %d\n", st.TotalMemories)
	fmt.Fprintf(w, "Unique users: %d\n", st.UniqueUsers)
	if !st.OldestEntry.IsZero() {
		fmt.Fprintf(w, "Oldest entry: %s\n", humanize.Time(st.OldestEntry))
		fmt.Fprintf(w, "Newest entry: %s\n", humanize.Time(st.NewestEntry))
	}
	printCounts(w, "Facts by type", st.FactsByType)
	printCounts(w, "Entries by type", st.EntriesByType)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %-16s %d\n", k, counts[k])
	}
}

func memoryFactsCmd(flags *globalFlags) *cobra.Command {
	var (
		q        memory.FactQuery
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "List stored facts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q.Window = memory.NewWindow(page, pageSize)
			return withMemory(cmd, flags, func(ctx context.Context, inst *app.Instance) error {
				res, r := inst.Memory.ListFacts(ctx, q)
				if !r.OK {
					return r.Err
				}
				out := cmd.OutOrStdout()
				if len(res.Items) == 0 {
					fmt.Fprintln(out, "No facts.")
					return nil
				}
				fmt.Fprintln(out, factsTable(res.Items, time.Now()))
				fmt.Fprintf(out, "%d of %d facts (page %d)\n", len(res.Items), res.Total, q.Page)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.GuildID, "guild", "", "Filter by guild ID")
	f.StringVar(&q.UserID, "user", "", "Filter by user ID")
	f.StringVar(&q.FactType, "type", "", "Filter by fact type")
	f.IntVar(&page, "page", 1, "Page number")
	f.IntVar(&pageSize, "page-size", memory.DefaultPageSize, "Facts per page")
	return cmd
}

func factsTable(facts []memory.Fact, now time.Time) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "USER", "GUILD", "TYPE", "VALUE", "CONF", "AGE")
	for _, f := range facts {
		t.Row(
			strconv.FormatInt(f.ID, 10),
			f.UserID,
			f.GuildID,
			f.FactType,
			f.Value,
			strconv.FormatFloat(f.Confidence, 'f', -1, 64),
			humanize.RelTime(f.CreatedAt, now, "ago", "from now"),
		)
	}
	return t
}

func memoryClearCmd(flags *globalFlags) *cobra.Command {
	var userID, guildID string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget everything about a user in a guild",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(cmd, flags, func(ctx context.Context, inst *app.Instance) error {
				if res := inst.Memory.ClearUser(ctx, userID, guildID); !res.OK {
					return res.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared memory of user %s in guild %s\n", userID, guildID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&guildID, "guild", "", `Guild ID ("dm" for direct messages)`)
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}

func memoryPruneCmd(flags *globalFlags) *cobra.Command {
	var days float64
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete facts and entries older than the retention age",
		Long: "Delete facts and entries older than --days. Without --days the\n" +
			"decay max age from the runtime settings is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMemory(cmd, flags, func(ctx context.Context, inst *app.Instance) error {
				maxAge := days
				if maxAge <= 0 {
					maxAge = inst.Settings.Snapshot().Memory.Decay.MaxAgeDays
				}
				if maxAge <= 0 {
					return errors.New("no retention age: pass --days or set memory.decay.max_age_days")
				}
				res, r := inst.Memory.PruneExpired(ctx, time.Duration(maxAge*float64(24*time.Hour)))
				if !r.OK {
					return r.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries and %d facts older than %g days\n", res.Entries, res.Facts, maxAge)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&days, "days", 0, "Maximum age in days")
	return cmd
}
