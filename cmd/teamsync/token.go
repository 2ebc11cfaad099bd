package main

import (
	"context"
	"fmt"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/bcnelson/teamsync/internal/credential"
	"github.com/spf13/cobra"
)

// tokenCmd manages encrypted platform tokens
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Encrypt and store Mattermost access tokens",
}

var tokenEncryptCmd = &cobra.Command{
	Use:   "encrypt TOKEN",
	Short: "Encrypt a token (or an LDAP password) with ENCRYPTION_KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cipher, err := credential.FromConfig(cfg.Credentials.EncryptionKey, cfg.Credentials.EncryptionSalt)
		if err != nil {
			return err
		}
		sealed, err := cipher.Seal(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sealed)
		return nil
	},
}

var tokenKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new random ENCRYPTION_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set ENCRYPTED_ACCESS_TOKEN",
	Short: "Store your encrypted token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.SyncService.SetToken(ctx, principalName, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token for %s is saved.\n", principalName)
			return nil
		})
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List who has a stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tokens, err := a.SyncService.ListTokens(ctx)
			if err != nil {
				return err
			}
			for _, t := range tokens {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Principal, t.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

func init() {
	tokenCmd.AddCommand(tokenEncryptCmd, tokenKeygenCmd, tokenSetCmd, tokenListCmd)
	rootCmd.AddCommand(tokenCmd)
}
