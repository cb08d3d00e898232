// Package prompt loads and plays the prerecorded prompt video and reports its
// playback progress.
package prompt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fakeyudi/cuecam/internal/device"
	"go.uber.org/zap"
)

// Player tracks playback of the prompt. Progress is derived from a clock
// started when playback begins, so it does not depend on the external viewer.
type Player struct {
	prober   Prober
	launcher Launcher
	now      func() time.Time
	log      *zap.Logger

	mu        sync.Mutex
	meta      Metadata
	loaded    bool
	stale     bool
	playing   bool
	startedAt time.Time
	last      float64
	playback  Playback
}

// NewPlayer returns a Player using prober and launcher.
func NewPlayer(prober Prober, launcher Launcher, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{prober: prober, launcher: launcher, now: time.Now, log: log}
}

// Load reads the prompt's metadata. The duration is captured once; later
// calls for the same source return the cached metadata until Invalidate.
func (p *Player) Load(ctx context.Context, source string) (Metadata, error) {
	p.mu.Lock()
	if p.loaded && !p.stale && p.meta.Source == source {
		meta := p.meta
		p.mu.Unlock()
		return meta, nil
	}
	p.mu.Unlock()

	meta, err := p.prober.Probe(ctx, source)
	if err != nil {
		p.log.Warn("prompt unavailable", zap.String("source", source), zap.Error(err))
		return Metadata{}, &device.Error{Kind: device.PromptUnavailable, Path: source, Err: err}
	}
	if meta.Duration <= 0 {
		return Metadata{}, &device.Error{Kind: device.PromptUnavailable, Path: source, Err: errors.New("prompt has no duration")}
	}

	p.mu.Lock()
	p.meta = meta
	p.loaded = true
	p.stale = false
	p.mu.Unlock()
	p.log.Info("prompt loaded",
		zap.String("source", source),
		zap.Duration("duration", meta.Duration),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height))
	return meta, nil
}

// Invalidate marks the cached metadata for reload on the next Load.
func (p *Player) Invalidate() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
}

// Stale reports whether the metadata needs reloading.
func (p *Player) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.loaded || p.stale
}

// Play restarts playback from the beginning in the external viewer. On
// ErrAutoplayRejected the clock is not started; call PlayManual.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return errors.New("prompt not loaded")
	}
	source := p.meta.Source
	p.stopLocked()
	p.last = 0
	p.playing = false
	p.mu.Unlock()

	pb, err := p.launcher.Launch(ctx, source)
	if err != nil {
		p.log.Warn("prompt autoplay rejected", zap.Error(err))
		if !errors.Is(err, ErrAutoplayRejected) {
			err = errors.Join(ErrAutoplayRejected, err)
		}
		return err
	}

	p.mu.Lock()
	p.playback = pb
	p.startClockLocked()
	p.mu.Unlock()
	return nil
}

// PlayManual starts the progress clock without an external viewer.
func (p *Player) PlayManual() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.startClockLocked()
}

func (p *Player) startClockLocked() {
	p.playing = true
	p.startedAt = p.now()
	p.last = 0
}

// Playing reports whether the progress clock is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Progress returns playback progress in [0,100]. It never decreases within one
// playback.
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.meta.Duration <= 0 {
		return p.last
	}
	elapsed := p.now().Sub(p.startedAt)
	pct := float64(elapsed) * 100 / float64(p.meta.Duration)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	if pct > p.last {
		p.last = pct
	}
	return p.last
}

// Stop halts playback and freezes progress.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		elapsed := p.now().Sub(p.startedAt)
		if d := p.meta.Duration; d > 0 {
			if pct := min(float64(elapsed)*100/float64(d), 100); pct > p.last {
				p.last = pct
			}
		}
	}
	p.playing = false
	p.stopLocked()
}

// Reset stops playback and zeroes progress for a new take.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.last = 0
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.playback != nil {
		p.playback.Stop()
		p.playback = nil
	}
}
