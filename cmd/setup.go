package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/cuecam/internal/profile"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure cuecam (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works before profile exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, true)
	},
}

// runSetup runs the interactive setup wizard on the command's streams.
// In edit mode the existing profile supplies the defaults.
func runSetup(cmd *cobra.Command, edit bool) error {
	var existing *profile.Profile
	if edit && profile.Exists() {
		p, err := profile.Load()
		if err == nil {
			existing = p
		}
	}

	prof, err := profile.RunSetup(cmd.InOrStdin(), cmd.OutOrStdout(), existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if err := profile.Save(prof); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	cmd.Println("  ✓ Profile saved.")
	cmd.Println("  Setup complete. Run 'cuecam doctor' to check your camera, then 'cuecam record'.")
	cmd.Println()
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
