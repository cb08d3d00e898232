package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/cuecam/internal/device"
	"github.com/fakeyudi/cuecam/internal/profile"
	"github.com/fakeyudi/cuecam/internal/prompt"
	"github.com/fakeyudi/cuecam/internal/report"
)

// check is one prerequisite verified by doctor.
type check struct {
	name     string
	required bool
	run      func(ctx context.Context) (string, error)
}

type checkResult struct {
	name     string
	required bool
	detail   string
	err      error
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check ffmpeg, the camera, the prompt video and the server profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		results := runChecks(ctx, doctorChecks())

		rows := make([][]string, 0, len(results))
		failed := 0
		for _, r := range results {
			status, detail := "ok", r.detail
			if r.err != nil {
				status, detail = "missing", r.err.Error()
				if !r.required {
					status = "warning"
				} else {
					failed++
				}
			}
			rows = append(rows, []string{r.name, status, detail})
		}
		cmd.Println(report.Table([]string{"Check", "Status", "Detail"}, rows))

		if failed > 0 {
			return fmt.Errorf("%d required check(s) failed", failed)
		}
		return nil
	},
}

// runChecks runs every check concurrently and returns results in order.
func runChecks(ctx context.Context, checks []check) []checkResult {
	results := make([]checkResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			detail, err := c.run(gctx)
			results[i] = checkResult{name: c.name, required: c.required, detail: detail, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func doctorChecks() []check {
	driver := driverFor(cfg)
	binary := func(name string) check {
		return check{name: name, required: name != "ffplay", run: func(context.Context) (string, error) {
			path, err := exec.LookPath(name)
			if err != nil {
				return "", fmt.Errorf("%s not found on PATH", name)
			}
			return path, nil
		}}
	}
	return []check{
		binary("ffmpeg"),
		binary("ffprobe"),
		binary("ffplay"),
		{name: "camera", required: true, run: func(ctx context.Context) (string, error) {
			if err := driver.Probe(ctx, device.Camera); err != nil {
				return "", device.Classify(driver.DevicePath(device.Camera), err, "")
			}
			return driver.DevicePath(device.Camera), nil
		}},
		{name: "microphone", required: true, run: func(ctx context.Context) (string, error) {
			if err := driver.Probe(ctx, device.Microphone); err != nil {
				return "", device.Classify(driver.DevicePath(device.Microphone), err, "")
			}
			return driver.DevicePath(device.Microphone), nil
		}},
		{name: "prompt", required: true, run: func(ctx context.Context) (string, error) {
			meta, err := prompt.FFprobe{}.Probe(ctx, cfg.PromptPath)
			if err != nil {
				return "", err
			}
			size := ""
			if fi, err := os.Stat(cfg.PromptPath); err == nil {
				size = ", " + humanize.Bytes(uint64(fi.Size()))
			}
			return fmt.Sprintf("%s (%dx%d, %s%s)", cfg.PromptPath, meta.Width, meta.Height, meta.Duration.Round(time.Second), size), nil
		}},
		{name: "display", required: false, run: func(context.Context) (string, error) {
			if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
				return "", errors.New("no display: the prompt must be started manually with p")
			}
			return "available", nil
		}},
		{name: "profile", required: true, run: func(context.Context) (string, error) {
			if cfg.ServerURL == "" {
				return "", errors.New("no server URL: run 'cuecam setup'")
			}
			sc := activeProfile.SessionContext()
			if !profile.Exists() && sc.Token == "" {
				return cfg.ServerURL, errors.New("no profile and no token: run 'cuecam setup'")
			}
			if sc.UserID == "" {
				return cfg.ServerURL, errors.New("no user id: uploads will be sent without one")
			}
			return fmt.Sprintf("%s as %s", cfg.ServerURL, sc.UserID), nil
		}},
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
