package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
)

const (
	pcmSampleRate = 48000
	pcmChannels   = 1
)

// FFmpegDriver captures camera and microphone through an ffmpeg subprocess.
// Video is written as rgb24 to stdout, PCM to fd 3.
type FFmpegDriver struct {
	Binary      string // default "ffmpeg"
	VideoFormat string // v4l2, avfoundation, dshow
	AudioFormat string // alsa, pulse; ignored for avfoundation
	Camera      string // /dev/video0, or an avfoundation index
	Microphone  string // "default", or an avfoundation index
}

// DefaultFFmpegDriver returns platform defaults.
func DefaultFFmpegDriver() *FFmpegDriver {
	if runtime.GOOS == "darwin" {
		return &FFmpegDriver{Binary: "ffmpeg", VideoFormat: "avfoundation", Camera: "0", Microphone: "0"}
	}
	return &FFmpegDriver{Binary: "ffmpeg", VideoFormat: "v4l2", AudioFormat: "alsa", Camera: "/dev/video0", Microphone: "default"}
}

func (d *FFmpegDriver) binary() string {
	if d.Binary == "" {
		return "ffmpeg"
	}
	return d.Binary
}

// DevicePath names the device behind in, for diagnostics.
func (d *FFmpegDriver) DevicePath(in InputKind) string {
	if in == Microphone {
		return "microphone " + d.Microphone
	}
	return d.Camera
}

// Probe checks that ffmpeg is installed and, where the platform exposes
// device nodes, that the device can be opened.
func (d *FFmpegDriver) Probe(ctx context.Context, in InputKind) error {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return fmt.Errorf("ffmpeg not found: install ffmpeg and try again")
	}
	switch {
	case in == Camera && d.VideoFormat == "v4l2":
		f, err := os.OpenFile(d.Camera, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		return f.Close()
	case in == Microphone && d.AudioFormat == "alsa":
		_, err := os.Stat("/dev/snd")
		return err
	}
	return nil
}

// Open starts the capture pipeline.
func (d *FFmpegDriver) Open(ctx context.Context, c Constraints) (*Feed, error) {
	format := Format{
		Width:      even(c.IdealWidth, 640),
		Height:     even(c.IdealHeight, 480),
		FrameRate:  c.FrameRate,
		SampleRate: pcmSampleRate,
		Channels:   pcmChannels,
	}
	if format.FrameRate <= 0 {
		format.FrameRate = 15
	}

	cmd := exec.Command(d.binary(), d.args(format, c.Audio)...)
	stderr := &tailBuffer{max: 8 << 10}
	cmd.Stderr = stderr

	// Both outputs use os.Pipe so the read ends outlive cmd.Wait.
	videoR, videoW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = videoW
	defer videoW.Close()

	var audioR *os.File
	if c.Audio {
		r, w, err := os.Pipe()
		if err != nil {
			videoR.Close()
			return nil, err
		}
		audioR = r
		cmd.ExtraFiles = []*os.File{w}
		defer w.Close()
	}

	if err := cmd.Start(); err != nil {
		videoR.Close()
		if audioR != nil {
			audioR.Close()
		}
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-done
			videoR.Close()
			if audioR != nil {
				audioR.Close()
			}
		})
	}

	feed := &Feed{
		Video:  videoR,
		Format: format,
		Stop:   stop,
		Stderr: stderr.String,
	}
	if audioR != nil {
		feed.Audio = audioR
	}
	return feed, nil
}

func (d *FFmpegDriver) args(f Format, audio bool) []string {
	size := strconv.Itoa(f.Width) + "x" + strconv.Itoa(f.Height)
	rate := strconv.Itoa(f.FrameRate)
	args := []string{"-hide_banner", "-loglevel", "error"}

	audioInput := "1:a"
	if d.VideoFormat == "avfoundation" {
		in := d.Camera
		if audio {
			in += ":" + d.Microphone
		}
		args = append(args, "-f", "avfoundation", "-framerate", rate, "-video_size", size, "-i", in)
		audioInput = "0:a"
	} else {
		args = append(args, "-f", d.VideoFormat, "-framerate", rate, "-video_size", size, "-i", d.Camera)
		if audio {
			args = append(args, "-f", d.AudioFormat, "-i", d.Microphone)
		}
	}

	args = append(args,
		"-map", "0:v",
		"-vf", "scale="+strconv.Itoa(f.Width)+":"+strconv.Itoa(f.Height),
		"-r", rate,
		"-pix_fmt", "rgb24",
		"-f", "rawvideo", "pipe:1",
	)
	if audio {
		args = append(args,
			"-map", audioInput,
			"-ac", strconv.Itoa(pcmChannels),
			"-ar", strconv.Itoa(pcmSampleRate),
			"-f", "s16le", "pipe:3",
		)
	}
	return args
}

func even(v, fallback int) int {
	if v <= 0 {
		v = fallback
	}
	return v &^ 1
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

var _ Driver = (*FFmpegDriver)(nil)
