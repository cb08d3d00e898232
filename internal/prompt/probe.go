package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultSource is the prompt asset shipped alongside the binary.
const DefaultSource = "prerecorded/prerecorded.mp4"

// ErrAutoplayRejected means playback could not start without user action.
// It is recoverable: the caller can start the progress clock manually.
var ErrAutoplayRejected = errors.New("prompt playback could not start automatically")

// Metadata describes the loaded prompt video.
type Metadata struct {
	Source   string
	Duration time.Duration
	Width    int
	Height   int
}

// Prober reads prompt metadata.
type Prober interface {
	Probe(ctx context.Context, source string) (Metadata, error)
}

// Playback is a running external viewer.
type Playback interface {
	Stop()
}

// Launcher opens the prompt in an external viewer.
type Launcher interface {
	Launch(ctx context.Context, source string) (Playback, error)
}

// FFprobe reads metadata with ffprobe.
type FFprobe struct {
	Binary string
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p FFprobe) Probe(ctx context.Context, source string) (Metadata, error) {
	if _, err := os.Stat(source); err != nil {
		return Metadata{}, err
	}
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		source)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Metadata{}, errors.New(msg)
		}
		return Metadata{}, err
	}
	return parseProbe(source, out)
}

func parseProbe(source string, out []byte) (Metadata, error) {
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return Metadata{}, fmt.Errorf("reading ffprobe output: %w", err)
	}
	if len(po.Streams) == 0 {
		return Metadata{}, errors.New("no video stream")
	}
	secs, err := strconv.ParseFloat(po.Format.Duration, 64)
	if err != nil || secs <= 0 {
		return Metadata{}, fmt.Errorf("invalid duration %q", po.Format.Duration)
	}
	return Metadata{
		Source:   source,
		Duration: time.Duration(secs * float64(time.Second)),
		Width:    po.Streams[0].Width,
		Height:   po.Streams[0].Height,
	}, nil
}

// FFplay plays the prompt in an ffplay window.
type FFplay struct {
	Binary string
}

func (p FFplay) Launch(ctx context.Context, source string) (Playback, error) {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return nil, fmt.Errorf("%w: no display available", ErrAutoplayRejected)
	}
	bin := p.Binary
	if bin == "" {
		bin = "ffplay"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrAutoplayRejected, bin)
	}
	cmd := exec.Command(bin, "-autoexit", "-loglevel", "error", "-window_title", "cuecam prompt", source)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAutoplayRejected, err)
	}
	pb := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(pb.done)
	}()
	return pb, nil
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
}

func (p *process) Stop() {
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		_ = p.cmd.Process.Kill()
		<-p.done
	})
}
