package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/spf13/cobra"
)

// mappingCmd manages course mappings
var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage the courses synced on schedule",
}

var mappingAddCmd = &cobra.Command{
	Use:   "add COURSE",
	Short: "Register a course for recurring sync",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			m, err := a.SyncService.AddMapping(ctx, principalName, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Course %s is added to course mappings.\n", m.Course)
			return nil
		})
	},
}

var mappingRemoveCmd = &cobra.Command{
	Use:   "remove COURSE",
	Short: "Unregister a course",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.SyncService.RemoveMapping(ctx, course); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Course %s is removed from course mappings.\n", course)
			return nil
		})
	},
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered courses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			mappings, err := a.SyncService.ListMappings(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, "No course in the mapping.")
				return nil
			}
			for _, m := range mappings {
				fmt.Fprintln(out, m.Course)
			}
			return nil
		})
	},
}

func init() {
	mappingCmd.AddCommand(mappingAddCmd, mappingRemoveCmd, mappingListCmd)
	rootCmd.AddCommand(mappingCmd)
}
