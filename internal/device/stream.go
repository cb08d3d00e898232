package device

import (
	"sync"
	"sync/atomic"
	"time"
)

// TrackKind identifies the media carried by a Track.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// Frame is one decoded camera frame in packed rgb24.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
	Seq    uint64
}

// Format describes the raw media the stream delivers.
type Format struct {
	Width      int
	Height     int
	FrameRate  int
	SampleRate int
	Channels   int
}

// FrameBytes is the size of one rgb24 frame.
func (f Format) FrameBytes() int {
	return f.Width * f.Height * 3
}

// FrameSource gives read access to the most recent camera frame.
type FrameSource interface {
	LatestFrame() (Frame, bool)
}

// TrackSource gives read access to raw video and audio data. Subscribers must
// call the returned cancel func when done.
type TrackSource interface {
	FrameSource
	Format() Format
	SubscribeVideo() (<-chan Frame, func())
	SubscribeAudio() (<-chan []byte, func())
}

// Track is a single live media track of an acquired stream.
type Track interface {
	Kind() TrackKind
	Stop()
}

// hub fans values out to subscribers. Slow subscribers drop values.
type hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	closed bool
	size   int
}

func newHub[T any](size int) *hub[T] {
	return &hub[T]{subs: make(map[int]chan T), size: size}
}

func (h *hub[T]) subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan T, h.size)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// VideoTrack holds the latest camera frame and fans frames out to subscribers.
type VideoTrack struct {
	mu     sync.RWMutex
	latest Frame
	ready  bool
	hub    *hub[Frame]
	stop   func()
	once   sync.Once
}

func newVideoTrack(stop func()) *VideoTrack {
	return &VideoTrack{hub: newHub[Frame](8), stop: stop}
}

func (t *VideoTrack) Kind() TrackKind { return KindVideo }

func (t *VideoTrack) publish(f Frame) {
	t.mu.Lock()
	t.latest = f
	t.ready = true
	t.mu.Unlock()
	t.hub.publish(f)
}

// LatestFrame returns the most recent frame, if any has arrived.
func (t *VideoTrack) LatestFrame() (Frame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.ready
}

// Stop ends the track. Safe to call more than once.
func (t *VideoTrack) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		t.ready = false
		t.mu.Unlock()
		t.hub.close()
		if t.stop != nil {
			t.stop()
		}
	})
}

// AudioTrack fans PCM blocks out to subscribers.
type AudioTrack struct {
	hub  *hub[[]byte]
	stop func()
	once sync.Once
}

func newAudioTrack(stop func()) *AudioTrack {
	return &AudioTrack{hub: newHub[[]byte](64), stop: stop}
}

func (t *AudioTrack) Kind() TrackKind { return KindAudio }

func (t *AudioTrack) publish(b []byte) { t.hub.publish(b) }

// Stop ends the track. Safe to call more than once.
func (t *AudioTrack) Stop() {
	t.once.Do(func() {
		t.hub.close()
		if t.stop != nil {
			t.stop()
		}
	})
}

// StreamHandle is an acquired camera+microphone stream. It is owned by the
// Manager that returned it; other components only read from it.
type StreamHandle struct {
	ID         string
	AcquiredAt time.Time
	Tracks     []Track

	format Format
	video  *VideoTrack
	audio  *AudioTrack

	released atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// Done is closed when the stream ends, either through Release or because the
// capture pipeline died. Err tells the two apart.
func (h *StreamHandle) Done() <-chan struct{} { return h.done }

// Err is non-nil once Done is closed for a stream lost without Release, for
// example an unplugged camera.
func (h *StreamHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *StreamHandle) finish(err error) {
	if h.done == nil {
		return
	}
	h.doneOnce.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *StreamHandle) markLost(err error) {
	if h.released.Load() {
		return
	}
	h.finish(err)
}

func (h *StreamHandle) Format() Format { return h.format }

func (h *StreamHandle) LatestFrame() (Frame, bool) {
	if h == nil || h.video == nil {
		return Frame{}, false
	}
	return h.video.LatestFrame()
}

func (h *StreamHandle) SubscribeVideo() (<-chan Frame, func()) {
	return h.video.hub.subscribe()
}

func (h *StreamHandle) SubscribeAudio() (<-chan []byte, func()) {
	if h.audio == nil {
		ch := make(chan []byte)
		close(ch)
		return ch, func() {}
	}
	return h.audio.hub.subscribe()
}

func (h *StreamHandle) stopAll() {
	h.released.Store(true)
	h.finish(nil)
	for _, t := range h.Tracks {
		t.Stop()
	}
}
