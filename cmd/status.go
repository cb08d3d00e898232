package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/cuecam/internal/report"
	"github.com/fakeyudi/cuecam/internal/session"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded take",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := report.ForFormat(statusFormat)
		if err != nil {
			return err
		}
		_, take, err := loadTake()
		if err != nil {
			if errors.Is(err, session.ErrNoTake) {
				cmd.Println("no recorded take")
				return nil
			}
			return err
		}

		out, err := r.Render(take)
		if err != nil {
			return err
		}
		cmd.Print(string(out))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format: text, markdown or json")
	rootCmd.AddCommand(statusCmd)
}
