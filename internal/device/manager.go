// Package device acquires and releases the camera+microphone stream and
// exposes its raw frames and PCM to the preview and the recorder.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InputKind selects which capture device a probe targets.
type InputKind int

const (
	Camera InputKind = iota
	Microphone
)

// Constraints describe the stream the caller would like.
type Constraints struct {
	IdealWidth  int
	IdealHeight int
	FrameRate   int
	Audio       bool
}

// Feed is a running capture pipeline opened by a Driver.
type Feed struct {
	Video  io.ReadCloser // packed rgb24 frames of Format.FrameBytes()
	Audio  io.ReadCloser // s16le PCM, nil when audio was not requested
	Format Format
	// Stop terminates the pipeline. It must be safe to call more than once.
	Stop func()
	// Stderr returns diagnostic output collected so far.
	Stderr func() string
}

// Driver opens platform capture devices.
type Driver interface {
	Probe(ctx context.Context, in InputKind) error
	Open(ctx context.Context, c Constraints) (*Feed, error)
	DevicePath(in InputKind) string
}

// Manager owns the lifecycle of acquired streams.
type Manager struct {
	driver       Driver
	log          *zap.Logger
	readyTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*StreamHandle
}

// NewManager returns a Manager backed by driver.
func NewManager(driver Driver, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		driver:       driver,
		log:          log,
		readyTimeout: 10 * time.Second,
		handles:      make(map[string]*StreamHandle),
	}
}

// Acquire probes camera and microphone concurrently, opens the stream and
// waits for the first frame. On any failure nothing stays acquired.
func (m *Manager) Acquire(ctx context.Context, c Constraints) (*StreamHandle, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.driver.Probe(gctx, Camera); err != nil {
			return Classify(m.driver.DevicePath(Camera), err, "")
		}
		return nil
	})
	if c.Audio {
		g.Go(func() error {
			if err := m.driver.Probe(gctx, Microphone); err != nil {
				return Classify(m.driver.DevicePath(Microphone), err, "")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn("device probe failed", zap.Error(err))
		return nil, err
	}

	feed, err := m.driver.Open(ctx, c)
	if err != nil {
		return nil, Classify(m.driver.DevicePath(Camera), err, "")
	}

	h := &StreamHandle{
		ID:     uuid.New().String(),
		format: feed.Format,
		done:   make(chan struct{}),
	}
	h.video = newVideoTrack(feed.Stop)
	h.Tracks = append(h.Tracks, h.video)
	if feed.Audio != nil {
		h.audio = newAudioTrack(feed.Stop)
		h.Tracks = append(h.Tracks, h.audio)
	}

	first := make(chan error, 1)
	go readFrames(feed, h, m.driver.DevicePath(Camera), first)
	if feed.Audio != nil {
		go readPCM(feed.Audio, h.audio)
	}

	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()
	select {
	case err := <-first:
		if err != nil {
			h.stopAll()
			stderr := ""
			if feed.Stderr != nil {
				stderr = feed.Stderr()
			}
			return nil, Classify(m.driver.DevicePath(Camera), err, stderr)
		}
	case <-timer.C:
		h.stopAll()
		return nil, &Error{Kind: Unknown, Path: m.driver.DevicePath(Camera), Err: errors.New("timed out waiting for the first camera frame")}
	case <-ctx.Done():
		h.stopAll()
		return nil, ctx.Err()
	}

	h.AcquiredAt = time.Now()
	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()
	m.log.Info("stream acquired",
		zap.String("stream", h.ID),
		zap.Int("width", h.format.Width),
		zap.Int("height", h.format.Height),
		zap.Bool("audio", h.audio != nil))
	return h, nil
}

// Release stops every track of h. Releasing nil or an already released handle
// is a no-op.
func (m *Manager) Release(h *StreamHandle) {
	if h == nil {
		return
	}
	h.stopAll()
	m.mu.Lock()
	_, tracked := m.handles[h.ID]
	delete(m.handles, h.ID)
	m.mu.Unlock()
	if tracked {
		m.log.Info("stream released", zap.String("stream", h.ID))
	}
}

// ReleaseAll stops every handle still owned by the manager.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	hs := make([]*StreamHandle, 0, len(m.handles))
	for _, h := range m.handles {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		m.Release(h)
	}
}

func readFrames(feed *Feed, h *StreamHandle, path string, first chan<- error) {
	t := h.video
	size := feed.Format.FrameBytes()
	var seq uint64
	reported := false
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(feed.Video, buf); err != nil {
			if !reported {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					err = fmt.Errorf("capture pipeline exited before the first frame")
				}
				first <- err
			} else {
				stderr := ""
				if feed.Stderr != nil {
					stderr = feed.Stderr()
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					err = errors.New("the camera stream ended unexpectedly")
				}
				h.markLost(Classify(path, err, stderr))
			}
			t.Stop()
			return
		}
		seq++
		t.publish(Frame{Width: feed.Format.Width, Height: feed.Format.Height, Pix: buf, Seq: seq})
		if !reported {
			reported = true
			first <- nil
		}
	}
}

func readPCM(r io.Reader, t *AudioTrack) {
	for {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			t.publish(buf[:n])
		}
		if err != nil {
			t.Stop()
			return
		}
	}
}
