// Command teamsync runs course syncs and manages course mappings, tokens
// and teams from the command line, with the same environment configuration
// as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/bcnelson/teamsync/internal/app"
	"github.com/bcnelson/teamsync/internal/config"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	principalName string
	verbose       bool
	timeout       time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "teamsync",
	Short: "Sync LDAP course groups into Mattermost teams",
	Long: `teamsync adds the members of LDAP course groups to Mattermost teams,
creating the teams and the missing user accounts on the way. It never removes
anybody from a team.

A course is written as "GROUP[, GROUP...] -> team", for example:
  teamsync sync "CPSC 101 001, CPSC 101 002 -> cpsc101"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&principalName, "as", defaultPrincipal(), "Principal whose stored token is used")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultPrincipal() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// loadConfig reads the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	if cfg.Log.Level == "debug" {
		level = cfg.Log.Level
	}
	return telemetry.NewLogger(level, "console")
}

// withApp runs fn with a fully wired App built from the environment.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, a)
}
