package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/config"
	"github.com/fakeyudi/cuecam/internal/device"
	"github.com/fakeyudi/cuecam/internal/prompt"
	"github.com/fakeyudi/cuecam/internal/session"
	"github.com/fakeyudi/cuecam/internal/tui"
)

var (
	recordPrompt  string
	recordServer  string
	recordNoWatch bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an answer while the prompt video plays, then merge it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("record needs an interactive terminal")
		}
		if recordPrompt != "" {
			cfg.PromptPath = recordPrompt
		}
		if recordServer != "" {
			cfg.ServerURL = recordServer
		}
		client, err := newMergeClient()
		if err != nil {
			return err
		}
		store, err := session.NewTakeStore()
		if err != nil {
			return err
		}

		devices := device.NewManager(driverFor(cfg), log)
		defer devices.ReleaseAll()

		log.Info("recording session opened",
			zap.String("prompt", cfg.PromptPath),
			zap.String("server", client.BaseURL()))

		final, err := tui.Run(cmd.Context(), tui.Deps{
			Devices:  devices,
			Prompt:   prompt.NewPlayer(prompt.FFprobe{}, prompt.FFplay{}, log),
			Recorder: capture.NewRecorder(capture.FFmpegEncoder{}, log),
			Merge:    client,
			Store:    store,
			Session:  sessionContext(),
			Log:      log,
		}, tui.Options{
			PromptPath:   cfg.PromptPath,
			MimeProfile:  cfg.MimeProfile,
			FrameRate:    cfg.FrameRate,
			PollInterval: cfg.PollInterval(),
			Threshold:    cfg.AutoStopThreshold,
			WatchPrompt:  !recordNoWatch,
		})
		if err != nil {
			return err
		}

		switch {
		case final.Accepted:
			cmd.Printf("Take %s accepted: %s\n", final.TakeID, final.MergedURL)
		case final.Complete():
			cmd.Printf("Take %s merged: %s\n", final.TakeID, final.MergedURL)
			cmd.Println("Run 'cuecam accept' to accept it.")
		case final.CanRetry():
			cmd.Printf("Take %s (%s) was not merged. Run 'cuecam retry' to try again.\n",
				final.TakeID, humanize.Bytes(uint64(final.Bytes)))
		}
		return nil
	},
}

// driverFor builds the capture driver from config, keeping platform
// defaults for anything unset.
func driverFor(c config.Config) *device.FFmpegDriver {
	d := device.DefaultFFmpegDriver()
	if c.InputFormat != "" {
		d.VideoFormat = c.InputFormat
	}
	if c.AudioFormat != "" {
		d.AudioFormat = c.AudioFormat
	}
	if c.CameraDevice != "" {
		d.Camera = c.CameraDevice
	}
	if c.MicDevice != "" {
		d.Microphone = c.MicDevice
	}
	return d
}

func init() {
	recordCmd.Flags().StringVar(&recordPrompt, "prompt", "", "prompt video to play (default from config)")
	recordCmd.Flags().StringVar(&recordServer, "server", "", "interview server URL (default from profile)")
	recordCmd.Flags().BoolVar(&recordNoWatch, "no-watch", false, "do not reload the prompt when its file changes")
	rootCmd.AddCommand(recordCmd)
}
