// Package tui runs a recording session in the terminal. It feeds user input
// and device results to the session machine and performs the effects the
// machine asks for.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/device"
	"github.com/fakeyudi/cuecam/internal/merge"
	"github.com/fakeyudi/cuecam/internal/profile"
	"github.com/fakeyudi/cuecam/internal/prompt"
	"github.com/fakeyudi/cuecam/internal/render"
	"github.com/fakeyudi/cuecam/internal/session"
)

// StreamManager acquires and releases the camera stream.
type StreamManager interface {
	Acquire(ctx context.Context, c device.Constraints) (*device.StreamHandle, error)
	Release(h *device.StreamHandle)
}

// PromptPlayer plays the prompt video and reports its progress.
type PromptPlayer interface {
	Load(ctx context.Context, source string) (prompt.Metadata, error)
	Invalidate()
	Play(ctx context.Context) error
	PlayManual()
	Progress() float64
	Stop()
	Reset()
}

// Recorder captures the stream into a recording.
type Recorder interface {
	Start(ctx context.Context, src device.TrackSource, profile string) error
	Stop() (*capture.Recording, error)
	Discard()
	Chunks() <-chan capture.ChunkEvent
	Failures() <-chan error
}

// MergeClient talks to the merge server.
type MergeClient interface {
	Submit(ctx context.Context, rec *capture.Recording, promptRef string, sc profile.SessionContext, progress merge.ProgressFunc) (merge.Result, []merge.Warning, error)
	Accept(ctx context.Context, responseID, videoURL string, sc profile.SessionContext) error
	LatestVideoURL(ctx context.Context, sc profile.SessionContext) (string, error)
	MergedURL(path string) string
}

// Deps are the components a session drives.
type Deps struct {
	Devices  StreamManager
	Prompt   PromptPlayer
	Recorder Recorder
	Merge    MergeClient
	Store    session.TakeStore
	Session  profile.SessionContext
	Log      *zap.Logger
}

// Options tune a session.
type Options struct {
	PromptPath   string
	MimeProfile  string
	FrameRate    int
	PollInterval time.Duration
	Threshold    float64
	// WatchPrompt reloads the prompt when its file changes on disk.
	WatchPrompt bool
}

// eventMsg delivers a machine event produced by a command.
type eventMsg struct{ ev session.Event }

// notifyMsg is an event read from the background notification channel.
type notifyMsg struct{ ev session.Event }

// streamMsg carries the outcome of an acquisition.
type streamMsg struct {
	handle *device.StreamHandle
	err    error
}

// streamEndedMsg reports that handle stopped; err is nil after a release.
type streamEndedMsg struct {
	handle *device.StreamHandle
	err    error
}

// Model is the root Bubble Tea model for a recording session.
type Model struct {
	deps   Deps
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	notify chan session.Event
	newID  func() string

	machine   session.Machine
	surface   render.Surface
	loop      render.Loop
	stream    *device.StreamHandle
	spoolPath string

	keys      keyMap
	help      help.Model
	promptBar progress.Model
	uploadBar progress.Model
	spinner   spinner.Model
	width     int
	quitting  bool
}

// New creates a session model. Cancel ctx to stop background work.
func New(ctx context.Context, deps Deps, opts Options) Model {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if opts.PromptPath == "" {
		opts.PromptPath = prompt.DefaultSource
	}
	if opts.MimeProfile == "" {
		opts.MimeProfile = capture.DefaultMimeProfile
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	ctx, cancel := context.WithCancel(ctx)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	m := Model{
		deps:      deps,
		opts:      opts,
		log:       deps.Log,
		ctx:       ctx,
		cancel:    cancel,
		notify:    make(chan session.Event, 64),
		newID:     uuid.NewString,
		machine:   session.New(session.Options{Threshold: opts.Threshold, PromptRef: opts.PromptPath}),
		surface:   render.SurfaceFor(0, 0),
		loop:      render.NewLoop(15),
		keys:      newKeyMap(),
		help:      help.New(),
		promptBar: progress.New(progress.WithDefaultGradient()),
		uploadBar: progress.New(progress.WithSolidFill("62")),
		spinner:   sp,
	}
	m.keys.sync(m.machine)
	return m
}

// Machine returns the current session state.
func (m Model) Machine() session.Machine { return m.machine }

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		m.listen(),
		m.forwardChunks(),
		func() tea.Msg { return eventMsg{session.Init{}} },
	}
	if m.opts.WatchPrompt {
		cmds = append(cmds, m.watchPrompt())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		bar := min(max(msg.Width-20, 10), 60)
		m.promptBar.Width = bar
		m.uploadBar.Width = bar
		return m, nil

	case eventMsg:
		return m, m.dispatch(msg.ev)

	case notifyMsg:
		return m, tea.Batch(m.dispatch(msg.ev), m.listen())

	case streamMsg:
		return m, m.acquired(msg)

	case streamEndedMsg:
		if msg.err == nil || msg.handle != m.stream {
			return m, nil
		}
		m.log.Error("camera stream lost", zap.String("stream", msg.handle.ID), zap.Error(msg.err))
		return m, m.dispatch(session.StreamLost{Err: msg.err})

	case render.FrameMsg:
		var cmd tea.Cmd
		m.loop, cmd = m.loop.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		var cmds []tea.Cmd
		pm, cmd := m.promptBar.Update(msg)
		m.promptBar = pm.(progress.Model)
		cmds = append(cmds, cmd)
		um, cmd := m.uploadBar.Update(msg)
		m.uploadBar = um.(progress.Model)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Quit):
		cmd = m.dispatch(session.Teardown{})
		m.cancel()
		m.quitting = true
		return m, tea.Sequence(cmd, tea.Quit)
	case key.Matches(msg, m.keys.Start):
		id := m.newID()
		m.log.Info("take started", zap.String("take_id", id))
		cmd = m.dispatch(session.Start{TakeID: id, At: time.Now()})
	case key.Matches(msg, m.keys.Stop):
		cmd = m.dispatch(session.UserStop{})
	case key.Matches(msg, m.keys.Play):
		cmd = m.dispatch(session.PlayManually{})
	case key.Matches(msg, m.keys.Restart):
		cmd = m.dispatch(session.Restart{})
	case key.Matches(msg, m.keys.Retry):
		cmd = m.dispatch(session.Retry{})
	case key.Matches(msg, m.keys.Accept):
		cmd = m.dispatch(session.Accept{})
	}
	return m, cmd
}

// dispatch applies ev and every event its effects produce synchronously,
// running effects in the order the machine returned them.
func (m *Model) dispatch(ev session.Event) tea.Cmd {
	var cmds []tea.Cmd
	queue := []session.Event{ev}
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		before := m.machine.State
		next, effects := m.machine.Apply(ev)
		m.machine = next
		if next.State != before {
			m.log.Debug("session transition",
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.Stringer("from", before),
				zap.Stringer("to", next.State),
				zap.String("take_id", next.TakeID))
		}
		for _, eff := range effects {
			cmd, follow := m.run(eff)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			queue = append(queue, follow...)
			if failed(follow) {
				// The failure's own transition decides what still runs.
				break
			}
		}
	}
	m.keys.sync(m.machine)
	if c := m.setBars(); c != nil {
		cmds = append(cmds, c)
	}
	return tea.Batch(cmds...)
}

// failed reports whether evs carries a failure of the effect that produced it.
func failed(evs []session.Event) bool {
	for _, ev := range evs {
		switch ev.(type) {
		case session.CaptureFailed, session.PromptFailed:
			return true
		}
	}
	return false
}

// acquired adopts a newly acquired stream, or reports the failure.
func (m *Model) acquired(msg streamMsg) tea.Cmd {
	if msg.err != nil {
		m.log.Warn("stream acquisition failed", zap.Error(msg.err))
		return m.dispatch(session.StreamFailed{Err: msg.err})
	}
	m.stream = msg.handle
	cmd := m.dispatch(session.StreamAcquired{})
	if m.machine.Closed || m.stream == nil {
		return cmd
	}
	var draw tea.Cmd
	m.loop, draw = m.loop.Start(m.surface, m.stream)
	return tea.Batch(cmd, draw, m.watchStream(m.stream))
}

// watchStream reports when h ends.
func (m Model) watchStream(h *device.StreamHandle) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-h.Done():
			return streamEndedMsg{handle: h, err: h.Err()}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) setBars() tea.Cmd {
	var cmds []tea.Cmd
	cmds = append(cmds, m.promptBar.SetPercent(m.machine.Progress/100))
	if m.machine.UploadTotal > 0 {
		cmds = append(cmds, m.uploadBar.SetPercent(float64(m.machine.UploadSent)/float64(m.machine.UploadTotal)))
	} else {
		cmds = append(cmds, m.uploadBar.SetPercent(0))
	}
	return tea.Batch(cmds...)
}

// ── Background work ────────────────────

func (m Model) listen() tea.Cmd {
	ctx, notify := m.ctx, m.notify
	return func() tea.Msg {
		select {
		case ev := <-notify:
			return notifyMsg{ev}
		case <-ctx.Done():
			return nil
		}
	}
}

// forwardChunks relays recorder chunk notifications and encoder failures
// until the session ends.
func (m Model) forwardChunks() tea.Cmd {
	ctx, notify, log := m.ctx, m.notify, m.log
	chunks, failures := m.deps.Recorder.Chunks(), m.deps.Recorder.Failures()
	return func() tea.Msg {
		for {
			var ev session.Event
			select {
			case c, ok := <-chunks:
				if !ok {
					return nil
				}
				ev = session.ChunkCaptured{Seq: c.Seq, Size: c.Size, Total: c.Total}
			case err := <-failures:
				log.Error("capture failed mid-take", zap.Error(err))
				ev = session.CaptureFailed{Err: err}
			case <-ctx.Done():
				return nil
			}
			select {
			case notify <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// watchPrompt reports prompt file changes. The player cache is invalidated
// before the machine hears about it.
func (m Model) watchPrompt() tea.Cmd {
	ctx, notify, player, log, path := m.ctx, m.notify, m.deps.Prompt, m.log, m.opts.PromptPath
	return func() tea.Msg {
		err := prompt.Watch(ctx, path, func(e prompt.AssetEvent) {
			log.Info("prompt asset changed", zap.String("path", path), zap.Stringer("event", e))
			player.Invalidate()
			ev := session.PromptAssetChanged{Removed: e == prompt.AssetRemoved}
			if ev.Removed {
				ev.Err = &device.Error{Kind: device.PromptUnavailable, Path: path, Err: fmt.Errorf("file was removed")}
			}
			select {
			case notify <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			log.Warn("prompt watcher unavailable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
}

// Run starts the session TUI and blocks until the user quits.
func Run(ctx context.Context, deps Deps, opts Options) (session.Machine, error) {
	p := tea.NewProgram(New(ctx, deps, opts), tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.cancel()
		return fm.machine, err
	}
	return session.Machine{}, err
}
