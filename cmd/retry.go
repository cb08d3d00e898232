package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/merge"
	"github.com/fakeyudi/cuecam/internal/session"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Resubmit the last take for merging without recording again",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, take, err := loadTake()
		if err != nil {
			if errors.Is(err, session.ErrNoTake) {
				return fmt.Errorf("no recorded take: run 'cuecam record' first")
			}
			return err
		}
		if take.Status == session.TakeMerged || take.Status == session.TakeAccepted {
			cmd.Printf("Take %s is already merged: %s\n", take.ID, take.MergedVideoURL)
			return nil
		}
		rec, err := store.LoadRecording(take)
		if err != nil {
			return fmt.Errorf("no recording data available to process: %w", err)
		}
		client, err := newMergeClient()
		if err != nil {
			return err
		}

		cmd.Printf("Merging take %s (%s)...\n", take.ID, humanize.Bytes(uint64(len(rec.Data))))
		sc := sessionContext()
		res, warnings, err := client.Submit(cmd.Context(), rec, take.PromptRef, sc, nil)
		for _, w := range warnings {
			cmd.Println("  ! " + string(w))
		}
		if err != nil {
			log.Error("retry failed", zap.String("take_id", take.ID), zap.Error(err))
			take.Status = session.TakeMergeFailed
			take.Error = err.Error()
			if serr := store.Save(take); serr != nil {
				log.Warn("could not persist take", zap.Error(serr))
			}
			return errors.New(merge.UserMessage(err))
		}

		take.Status = session.TakeMerged
		take.Error = ""
		take.ResponseID = res.ResponseID
		take.MergedVideoURL = client.MergedURL(res.MergedVideoURL)
		if url, err := client.LatestVideoURL(cmd.Context(), sc); err != nil {
			cmd.Println("  ! Error fetching updated data after merge: " + err.Error())
		} else if url != "" {
			take.MergedVideoURL = url
		}
		if err := store.Save(take); err != nil {
			return err
		}
		log.Info("retry merged", zap.String("take_id", take.ID), zap.String("response_id", take.ResponseID))
		cmd.Printf("Merged: %s\n", take.MergedVideoURL)
		cmd.Println("Run 'cuecam accept' to accept it.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
