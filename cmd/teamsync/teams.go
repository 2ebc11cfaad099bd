package main

import (
	"context"
	"fmt"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/spf13/cobra"
)

// teamsCmd manages platform teams directly
var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List and manage Mattermost teams",
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every team",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			teams, err := a.SyncService.ListTeams(ctx, principalName)
			if err != nil {
				return err
			}
			for _, t := range teams {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.Name, t.Type, t.DisplayName)
			}
			return nil
		})
	},
}

var teamsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayName, _ := cmd.Flags().GetString("display-name")
		teamType, _ := cmd.Flags().GetString("type")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			team, err := a.SyncService.CreateTeam(ctx, principalName, &domain.CreateTeamRequest{
				Name:        args[0],
				DisplayName: displayName,
				Type:        teamType,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Team %s is created.\n", team.Name)
			return nil
		})
	},
}

var teamsAddUserCmd = &cobra.Command{
	Use:   "add-user TEAM USERNAME",
	Short: "Add a user to a team",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if _, err := a.SyncService.AddUser(ctx, principalName, args[0], &domain.AddTeamMemberRequest{
				Username: args[1],
				Role:     role,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is added to team %s.\n", args[1], args[0])
			return nil
		})
	},
}

var teamsRemoveUserCmd = &cobra.Command{
	Use:   "remove-user TEAM USERNAME",
	Short: "Remove a user from a team",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.SyncService.RemoveUser(ctx, principalName, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is removed from team %s.\n", args[1], args[0])
			return nil
		})
	},
}

func init() {
	teamsCreateCmd.Flags().String("display-name", "", "Display name (defaults to the name)")
	teamsCreateCmd.Flags().String("type", "", "O (open) or I (invite only)")
	teamsAddUserCmd.Flags().String("role", "user", "user or admin")
	teamsCmd.AddCommand(teamsListCmd, teamsCreateCmd, teamsAddUserCmd, teamsRemoveUserCmd)
	rootCmd.AddCommand(teamsCmd)
}
