package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/spf13/cobra"
)

var syncOnce bool

// syncCmd runs an ad-hoc sync
var syncCmd = &cobra.Command{
	Use:   "sync COURSE|all",
	Short: "Sync a course, or every registered course",
	Long: `Sync a course into its team and print the progress as it happens.

A successful course is registered for recurring sync unless --once is given
(SYNC_ONCE_SEMANTICS=register flips this). "all" syncs every registered
course and keeps going past failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSync,
}

// refreshCmd runs one scheduled pass
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one scheduled pass with MM_ENCRYPTED_ACCESS_TOKEN",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.SyncService.Refresh(ctx)
		})
	},
}

// runsCmd lists recorded course runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent course runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			runs, err := a.SyncService.ListSyncRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-9s %-7s %s (+%d", r.StartedAt.Format("2006-01-02 15:04:05"), r.Trigger, r.Status, r.Course, r.Added)
				if r.FailedUsers > 0 {
					fmt.Fprintf(out, ", %d failed", r.FailedUsers)
				}
				fmt.Fprintln(out, ")")
				if r.Error != "" {
					fmt.Fprintf(out, "    %s\n", r.Error)
				}
			}
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "Apply the once policy to this course")
	runsCmd.Flags().Int("limit", 20, "Number of runs to show")
	rootCmd.AddCommand(syncCmd, refreshCmd, runsCmd)
}

var errSyncFailed = errors.New("sync failed")

func runSync(cmd *cobra.Command, args []string) error {
	course := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		events, err := a.SyncService.Sync(ctx, principalName, course, syncOnce)
		if err != nil {
			return err
		}
		failed := false
		out := cmd.OutOrStdout()
		for ev := range events {
			fmt.Fprintln(out, ev.Message)
			switch ev.Kind {
			case domain.EventFailed:
				failed = true
			case domain.EventSummary:
				failed = failed || ev.Count > 0
			}
		}
		if failed {
			return errSyncFailed
		}
		return ctx.Err()
	})
}
