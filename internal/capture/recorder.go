package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fakeyudi/cuecam/internal/device"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	// ErrEncoderExited reports an encoder that ended on its own mid-take.
	ErrEncoderExited = errors.New("the encoder stopped before the recording ended")
)

const readSize = 64 << 10

// ChunkEvent is emitted for every encoded chunk kept in the buffer.
type ChunkEvent struct {
	Seq   int
	Size  int
	Total int
}

// run is one encoder pipeline. The read goroutine owns Wait; readErr and
// waitErr are final once done is closed.
type run struct {
	p        *Pipeline
	cancels  []func()
	pumps    sync.WaitGroup
	done     chan struct{}
	stopping bool

	readErr error
	waitErr error
}

// Recorder turns a live stream into a Recording.
type Recorder struct {
	enc         Encoder
	log         *zap.Logger
	stopTimeout time.Duration

	events   chan ChunkEvent
	failures chan error

	mu      sync.Mutex
	buf     Buffer
	profile string
	cur     *run
}

// NewRecorder returns a Recorder backed by enc.
func NewRecorder(enc Encoder, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		enc:         enc,
		log:         log,
		stopTimeout: 10 * time.Second,
		events:      make(chan ChunkEvent, 64),
		failures:    make(chan error, 1),
	}
}

// Chunks delivers chunk notifications. Slow readers miss events, never data.
func (r *Recorder) Chunks() <-chan ChunkEvent { return r.events }

// Failures reports an encoder that exits before Stop is called.
func (r *Recorder) Failures() <-chan error { return r.failures }

// Start clears the buffer and begins encoding src.
func (r *Recorder) Start(ctx context.Context, src device.TrackSource, profile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return ErrAlreadyRecording
	}
	if profile == "" {
		profile = DefaultMimeProfile
	}
	r.buf.Reset()

	video, cancelVideo := src.SubscribeVideo()
	audio, cancelAudio := src.SubscribeAudio()
	format := src.Format()
	p, err := r.enc.Open(ctx, format, profile, format.SampleRate > 0)
	if err != nil {
		cancelVideo()
		cancelAudio()
		r.log.Error("encoder failed to start", zap.String("profile", profile), zap.Error(err))
		return err
	}

	rn := &run{p: p, cancels: []func(){cancelVideo, cancelAudio}, done: make(chan struct{})}
	r.cur = rn
	r.profile = profile

	rn.pumps.Add(1)
	go func() {
		defer rn.pumps.Done()
		pump(p.Video, video, func(f device.Frame) []byte { return f.Pix })
	}()
	if p.Audio != nil {
		rn.pumps.Add(1)
		go func() {
			defer rn.pumps.Done()
			pump(p.Audio, audio, func(b []byte) []byte { return b })
		}()
	} else {
		cancelAudio()
	}
	go r.read(rn)

	r.log.Info("capture started", zap.String("profile", profile))
	return nil
}

// pump copies values from ch into w until ch closes, then closes w.
func pump[T any](w io.WriteCloser, ch <-chan T, bytes func(T) []byte) {
	defer w.Close()
	for v := range ch {
		if _, err := w.Write(bytes(v)); err != nil {
			// Encoder gone; drain until the subscription closes.
			for range ch {
			}
			return
		}
	}
}

func (r *Recorder) read(rn *run) {
	defer close(rn.done)
	var readErr error
	for {
		buf := make([]byte, readSize)
		n, err := rn.p.Output.Read(buf)
		if n > 0 {
			r.mu.Lock()
			var kept bool
			var ev ChunkEvent
			if r.cur == rn {
				kept = r.buf.Append(buf[:n])
				ev = ChunkEvent{Seq: r.buf.Len(), Size: n, Total: r.buf.Size()}
			}
			r.mu.Unlock()
			if kept {
				select {
				case r.events <- ev:
				default:
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}
	waitErr := rn.p.Wait()

	r.mu.Lock()
	rn.readErr, rn.waitErr = readErr, waitErr
	early := r.cur == rn && !rn.stopping
	r.mu.Unlock()
	if !early {
		return
	}

	err := errors.Join(waitErr, readErr)
	if err == nil {
		err = ErrEncoderExited
	} else {
		err = fmt.Errorf("%w: %w", ErrEncoderExited, err)
	}
	r.log.Error("encoder exited during capture", zap.Error(err))
	select {
	case r.failures <- err:
	default:
	}
}

// Stop ends the inputs, waits for the encoder to flush and returns the
// recording. A take with no chunks yields ErrEmptyRecording; an encoder that
// failed or had to be killed yields an error and no recording.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	rn := r.cur
	if rn == nil || rn.stopping {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	rn.stopping = true
	r.mu.Unlock()

	for _, c := range rn.cancels {
		c()
	}
	pumped := make(chan struct{})
	go func() {
		rn.pumps.Wait()
		close(pumped)
	}()

	done := rn.done
	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	killed := false
	for pumped != nil || done != nil {
		select {
		case <-pumped:
			pumped = nil
		case <-done:
			done = nil
		case <-timer.C:
			r.log.Warn("encoder did not flush in time; killing")
			rn.p.Kill()
			killed = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != rn {
		// Discarded while stopping.
		return nil, ErrNotRecording
	}
	r.cur = nil

	if err := errors.Join(rn.waitErr, rn.readErr); err != nil || killed {
		if killed {
			err = errors.Join(errors.New("encoder did not finish in time"), err)
		}
		r.buf.Reset()
		r.log.Error("capture failed", zap.Error(err))
		return nil, fmt.Errorf("recording incomplete: %w", err)
	}

	rec, err := r.buf.Finalize(r.profile)
	if err != nil {
		r.log.Warn("capture produced no data", zap.Error(err))
		return nil, err
	}
	r.log.Info("capture finalized", zap.Int("chunks", rec.Chunks), zap.Int("bytes", len(rec.Data)))
	return rec, nil
}

// Discard aborts any running capture and drops buffered chunks. A Stop in
// progress returns ErrNotRecording.
func (r *Recorder) Discard() {
	r.mu.Lock()
	rn := r.cur
	r.cur = nil
	r.buf.Reset()
	r.mu.Unlock()

	if rn == nil {
		return
	}
	for _, c := range rn.cancels {
		c()
	}
	rn.p.Kill()
	rn.pumps.Wait()

	r.log.Info("capture discarded")
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Buffered returns the number of chunks and bytes held.
func (r *Recorder) Buffered() (chunks, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len(), r.buf.Size()
}
