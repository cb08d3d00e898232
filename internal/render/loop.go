package render

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fakeyudi/cuecam/internal/device"
)

var lastID int64

func nextID() int {
	return int(atomic.AddInt64(&lastID, 1))
}

// FrameMsg asks a running Loop to draw its next frame.
type FrameMsg struct {
	ID   int
	Time time.Time
	tag  int
}

// Loop redraws the preview once per tick while running. Each Start begins a
// new generation; frame messages from earlier generations are ignored, so a
// stopped loop never draws again.
type Loop struct {
	id       int
	tag      int
	interval time.Duration
	running  bool

	surface Surface
	src     device.FrameSource
	view    string
	lastSeq uint64
	frames  uint64
}

// NewLoop returns a stopped loop ticking at fps.
func NewLoop(fps int) Loop {
	if fps <= 0 {
		fps = 15
	}
	return Loop{
		id:       nextID(),
		interval: time.Second / time.Duration(fps),
	}
}

// ID identifies the loop in FrameMsg.
func (l Loop) ID() int { return l.id }

// Running reports whether the loop is drawing.
func (l Loop) Running() bool { return l.running }

// Frames counts camera frames drawn since the loop was created.
func (l Loop) Frames() uint64 { return l.frames }

// Start begins drawing src onto surface. Starting a running loop restarts it
// with a fresh generation.
func (l Loop) Start(surface Surface, src device.FrameSource) (Loop, tea.Cmd) {
	l.tag++
	l.running = true
	l.surface = surface
	l.src = src
	l.lastSeq = 0
	l.draw()
	return l, l.tick()
}

// Stop halts the loop. Stopping a stopped or never started loop is a no-op.
func (l Loop) Stop() Loop {
	if !l.running {
		return l
	}
	l.running = false
	l.tag++
	l.src = nil
	l.view = l.surface.Placeholder(PlaceholderText)
	return l
}

// Update draws on FrameMsg for the current generation and schedules the next.
func (l Loop) Update(msg tea.Msg) (Loop, tea.Cmd) {
	fm, ok := msg.(FrameMsg)
	if !ok || fm.ID != l.id || fm.tag != l.tag || !l.running {
		return l, nil
	}
	l.draw()
	return l, l.tick()
}

// View returns the last drawn preview.
func (l Loop) View() string {
	if l.view == "" {
		return l.surface.Placeholder(PlaceholderText)
	}
	return l.view
}

func (l *Loop) draw() {
	if l.src == nil {
		l.view = l.surface.Placeholder(PlaceholderText)
		return
	}
	f, ok := l.src.LatestFrame()
	if !ok {
		l.view = l.surface.Placeholder(PlaceholderText)
		return
	}
	if f.Seq == l.lastSeq && l.view != "" {
		return
	}
	l.lastSeq = f.Seq
	l.frames++
	l.view = l.surface.Paint(f)
}

func (l Loop) tick() tea.Cmd {
	id, tag := l.id, l.tag
	return tea.Tick(l.interval, func(t time.Time) tea.Msg {
		return FrameMsg{ID: id, Time: t, tag: tag}
	})
}
