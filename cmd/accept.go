package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/session"
)

var acceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Accept the last merged take",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, take, err := loadTake()
		if err != nil {
			if errors.Is(err, session.ErrNoTake) {
				return fmt.Errorf("no recorded take: run 'cuecam record' first")
			}
			return err
		}
		if take.Accepted {
			cmd.Printf("Take %s is already accepted.\n", take.ID)
			return nil
		}
		if take.ResponseID == "" {
			return errors.New("responseId is missing: cannot update video URL")
		}
		client, err := newMergeClient()
		if err != nil {
			return err
		}

		if err := client.Accept(cmd.Context(), take.ResponseID, take.MergedVideoURL, sessionContext()); err != nil {
			log.Warn("accept failed", zap.String("take_id", take.ID), zap.Error(err))
			return fmt.Errorf("failed to update video URL: %w", err)
		}

		take.Accepted = true
		take.Status = session.TakeAccepted
		take.Error = ""
		if err := store.Save(take); err != nil {
			return err
		}
		log.Info("take accepted", zap.String("take_id", take.ID), zap.String("response_id", take.ResponseID))
		cmd.Println("Video Accepted and URL updated!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(acceptCmd)
}
