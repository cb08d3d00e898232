package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/config"
	"github.com/fakeyudi/cuecam/internal/logging"
	"github.com/fakeyudi/cuecam/internal/merge"
	"github.com/fakeyudi/cuecam/internal/profile"
	"github.com/fakeyudi/cuecam/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

// log is the file logger, populated in PersistentPreRunE.
var log = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:          "cuecam",
	Short:        "Record a webcam answer to a prompt video and merge it on the interview server",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup check for the setup command itself.
		if cmd.Name() == "setup" {
			return nil
		}

		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		if !profile.Exists() {
			if term.IsTerminal(os.Stdin.Fd()) {
				cmd.Println()
				cmd.Println("  Welcome to cuecam! Looks like this is your first time.")
				if err := runSetup(cmd, false); err != nil {
					return err
				}
			}
			// Non-interactive (tests, pipes): credentials may still come from the environment.
		}

		activeProfile = nil
		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = c

		// Profile values fill in config gaps.
		if cfg.ServerURL == "" && activeProfile != nil {
			cfg.ServerURL = activeProfile.ServerURL
		}

		data, err := session.DataDir()
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		l, err := logging.NewFromConfig(&cfg, filepath.Join(data, "logs"))
		if err != nil {
			return fmt.Errorf("opening log: %w", err)
		}
		log = l.With(zap.String("command", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// GetProfile returns the active user profile.
func GetProfile() *profile.Profile {
	return activeProfile
}

// sessionContext returns the credentials for server calls.
func sessionContext() profile.SessionContext {
	return activeProfile.SessionContext()
}

// newMergeClient returns a client for the configured server.
func newMergeClient() (*merge.Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("no server URL configured: run 'cuecam setup' or set %s", config.EnvServerURL)
	}
	return merge.New(cfg.ServerURL, cfg.MergeTimeout(), log), nil
}

// loadTake returns the last persisted take.
func loadTake() (session.TakeStore, *session.Take, error) {
	store, err := session.NewTakeStore()
	if err != nil {
		return nil, nil, err
	}
	t, err := store.Load()
	if err != nil {
		return store, nil, err
	}
	return store, t, nil
}
