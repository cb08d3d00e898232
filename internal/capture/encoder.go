package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/fakeyudi/cuecam/internal/device"
)

// Pipeline is a running encoder. Raw frames go to Video, PCM to Audio and
// encoded media comes out of Output until both inputs are closed.
type Pipeline struct {
	Video  io.WriteCloser
	Audio  io.WriteCloser // nil when the stream has no audio
	Output io.Reader
	// Wait blocks until the encoder exits. Call only after Output hits EOF.
	Wait func() error
	// Kill aborts the encoder.
	Kill func()
}

// Encoder starts encoding pipelines.
type Encoder interface {
	Open(ctx context.Context, f device.Format, profile string, audio bool) (*Pipeline, error)
}

// FFmpegEncoder encodes with an ffmpeg subprocess reading rawvideo on stdin
// and s16le PCM on fd 3.
type FFmpegEncoder struct {
	Binary string
}

// ProfileArgs returns the codec and muxer arguments for a MIME profile.
func ProfileArgs(profile string) ([]string, error) {
	base, codecs, _ := strings.Cut(strings.ReplaceAll(profile, " ", ""), ";codecs=")
	switch base {
	case "video/webm":
		switch codecs {
		case "", "vp9", "vp9,opus":
			return []string{
				"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1",
				"-b:v", "1M", "-pix_fmt", "yuv420p",
				"-c:a", "libopus",
				"-f", "webm",
			}, nil
		case "vp8", "vp8,opus", "vp8,vorbis":
			return []string{
				"-c:v", "libvpx", "-deadline", "realtime", "-cpu-used", "8",
				"-b:v", "1M", "-pix_fmt", "yuv420p",
				"-c:a", "libopus",
				"-f", "webm",
			}, nil
		}
	case "video/mp4":
		return []string{
			"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency", "-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-movflags", "frag_keyframe+empty_moov",
			"-f", "mp4",
		}, nil
	}
	return nil, fmt.Errorf("unsupported mime profile %q", profile)
}

func (e FFmpegEncoder) Open(ctx context.Context, f device.Format, profile string, audio bool) (*Pipeline, error) {
	codec, err := ProfileArgs(profile)
	if err != nil {
		return nil, err
	}
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-video_size", strconv.Itoa(f.Width) + "x" + strconv.Itoa(f.Height),
		"-framerate", strconv.Itoa(f.FrameRate),
		"-i", "pipe:0",
	}
	if audio {
		args = append(args,
			"-f", "s16le", "-ar", strconv.Itoa(f.SampleRate), "-ac", strconv.Itoa(f.Channels),
			"-i", "pipe:3")
	}
	args = append(args, codec...)
	args = append(args, "pipe:1")

	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	var audioW *os.File
	if audio {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.ExtraFiles = []*os.File{r}
		audioW = w
		defer r.Close()
	}

	if err := cmd.Start(); err != nil {
		if audioW != nil {
			audioW.Close()
		}
		return nil, fmt.Errorf("starting encoder: %w", err)
	}

	var once sync.Once
	p := &Pipeline{
		Video:  stdin,
		Output: stdout,
		Wait: func() error {
			if err := cmd.Wait(); err != nil {
				if msg := strings.TrimSpace(stderr.String()); msg != "" {
					return fmt.Errorf("encoder: %s", msg)
				}
				return fmt.Errorf("encoder: %w", err)
			}
			return nil
		},
		Kill: func() {
			once.Do(func() { _ = cmd.Process.Kill() })
		},
	}
	if audioW != nil {
		p.Audio = audioW
	}
	return p, nil
}

var _ Encoder = FFmpegEncoder{}
