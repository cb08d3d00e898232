package device

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDriver feeds frames written by the test through in-memory pipes.
type fakeDriver struct {
	cameraErr error
	micErr    error
	openErr   error
	stderr    string

	opened  atomic.Int32
	stopped atomic.Int32

	// openCh receives the video writer once Open has run.
	openCh chan *io.PipeWriter
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{openCh: make(chan *io.PipeWriter, 1)}
}

var fakeFormat = Format{Width: 4, Height: 2, FrameRate: 15, SampleRate: 48000, Channels: 1}

func (d *fakeDriver) DevicePath(in InputKind) string {
	if in == Microphone {
		return "microphone default"
	}
	return "/dev/video9"
}

func (d *fakeDriver) Probe(ctx context.Context, in InputKind) error {
	if in == Microphone {
		return d.micErr
	}
	return d.cameraErr
}

func (d *fakeDriver) Open(ctx context.Context, c Constraints) (*Feed, error) {
	d.opened.Add(1)
	if d.openErr != nil {
		return nil, d.openErr
	}
	vr, vw := io.Pipe()
	ar, aw := io.Pipe()
	var once sync.Once
	feed := &Feed{
		Video:  vr,
		Audio:  ar,
		Format: fakeFormat,
		Stop: func() {
			once.Do(func() {
				d.stopped.Add(1)
				vw.Close()
				aw.Close()
			})
		},
		Stderr: func() string { return d.stderr },
	}
	d.openCh <- vw
	return feed, nil
}

func waitOpen(t *testing.T, d *fakeDriver) *io.PipeWriter {
	t.Helper()
	select {
	case w := <-d.openCh:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("driver was never opened")
		return nil
	}
}

func TestAcquireAndRelease(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(d, nil)

	done := make(chan struct{})
	var h *StreamHandle
	var err error
	go func() {
		h, err = m.Acquire(context.Background(), Constraints{IdealWidth: 4, IdealHeight: 2, Audio: true})
		close(done)
	}()

	vw := waitOpen(t, d)
	go func() { _, _ = vw.Write(make([]byte, fakeFormat.FrameBytes())) }()
	<-done

	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(h.Tracks) != 2 {
		t.Fatalf("expected video and audio tracks, got %d", len(h.Tracks))
	}
	if _, ok := h.LatestFrame(); !ok {
		t.Error("expected a ready frame after acquisition")
	}
	if h.AcquiredAt.IsZero() {
		t.Error("AcquiredAt not set")
	}

	frames, cancel := h.SubscribeVideo()
	defer cancel()

	m.Release(h)
	m.Release(h) // idempotent

	if got := d.stopped.Load(); got != 1 {
		t.Errorf("pipeline stopped %d times, want 1", got)
	}
	if _, ok := <-frames; ok {
		t.Error("expected subscriber channel to be closed after release")
	}
	if _, ok := h.LatestFrame(); ok {
		t.Error("expected no frame after release")
	}
}

func TestAcquirePermissionDenied(t *testing.T) {
	d := newFakeDriver()
	d.cameraErr = fs.ErrPermission
	m := NewManager(d, nil)

	h, err := m.Acquire(context.Background(), Constraints{Audio: true})
	if h != nil {
		t.Fatal("expected nil handle on permission failure")
	}
	if !IsKind(err, PermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if d.opened.Load() != 0 {
		t.Error("pipeline must not be opened when a probe fails")
	}
}

func TestAcquireMicrophoneMissing(t *testing.T) {
	d := newFakeDriver()
	d.micErr = fs.ErrNotExist
	m := NewManager(d, nil)

	_, err := m.Acquire(context.Background(), Constraints{Audio: true})
	if !IsKind(err, NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	var de *Error
	if errors.As(err, &de) && de.Path != "microphone default" {
		t.Errorf("Path = %q, want microphone", de.Path)
	}
}

func TestAcquirePipelineExitsEarly(t *testing.T) {
	d := newFakeDriver()
	d.stderr = "/dev/video9: Permission denied\n"
	m := NewManager(d, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), Constraints{})
		done <- err
	}()

	waitOpen(t, d).Close()

	err := <-done
	if !IsKind(err, PermissionDenied) {
		t.Fatalf("expected PermissionDenied from stderr, got %v", err)
	}
	if d.stopped.Load() == 0 {
		t.Error("partial pipeline must be stopped")
	}
}

func TestReleaseNilIsNoop(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	m.Release(nil)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		stderr string
		want   ErrorKind
	}{
		{"fs permission", fs.ErrPermission, "", PermissionDenied},
		{"fs missing", fs.ErrNotExist, "", NotFound},
		{"stderr permission", errors.New("exit status 1"), "x: Permission denied", PermissionDenied},
		{"stderr missing", errors.New("exit status 1"), "x: No such file or directory", NotFound},
		{"busy", errors.New("exit status 1"), "Device or resource busy", Unknown},
		{"already classified", &Error{Kind: PromptUnavailable, Path: "p"}, "", PromptUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("/dev/video0", tt.err, tt.stderr)
			if got.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestPromptUnavailableMessageIncludesPath(t *testing.T) {
	err := &Error{Kind: PromptUnavailable, Path: "prerecorded/prerecorded.mp4", Err: errors.New("moov atom not found")}
	want := "Prerecorded video error: moov atom not found. Ensure the file is correctly located at: prerecorded/prerecorded.mp4"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func acquireFake(t *testing.T, m *Manager, d *fakeDriver) (*StreamHandle, *io.PipeWriter) {
	t.Helper()
	done := make(chan struct{})
	var h *StreamHandle
	var err error
	go func() {
		h, err = m.Acquire(context.Background(), Constraints{IdealWidth: 4, IdealHeight: 2})
		close(done)
	}()
	vw := waitOpen(t, d)
	go func() { _, _ = vw.Write(make([]byte, fakeFormat.FrameBytes())) }()
	<-done
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return h, vw
}

func TestStreamLostWhenPipelineDies(t *testing.T) {
	d := newFakeDriver()
	d.stderr = "[video4linux2] ioctl(VIDIOC_DQBUF): No such device\n"
	m := NewManager(d, nil)
	h, vw := acquireFake(t, m, d)

	if h.Err() != nil {
		t.Fatalf("Err before loss = %v", h.Err())
	}
	vw.Close()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after the capture pipeline exited")
	}
	var de *Error
	if !errors.As(h.Err(), &de) || de.Path != "/dev/video9" {
		t.Fatalf("Err = %v, want a device error for the camera", h.Err())
	}
}

func TestReleaseIsNotALoss(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(d, nil)
	h, _ := acquireFake(t, m, d)

	m.Release(h)
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Release")
	}
	if h.Err() != nil {
		t.Fatalf("a released stream reported a loss: %v", h.Err())
	}
}
