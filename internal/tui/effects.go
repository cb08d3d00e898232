package tui

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/fakeyudi/cuecam/internal/device"
	"github.com/fakeyudi/cuecam/internal/prompt"
	"github.com/fakeyudi/cuecam/internal/render"
	"github.com/fakeyudi/cuecam/internal/session"
)

// run performs one effect. Quick effects run inline; anything that blocks is
// returned as a command whose result comes back as a message. Events the
// effect produces immediately are returned for the caller to apply.
func (m *Model) run(eff session.Effect) (tea.Cmd, []session.Event) {
	switch e := eff.(type) {
	case session.StartRenderLoop:
		var cmd tea.Cmd
		if m.stream != nil {
			m.loop, cmd = m.loop.Start(m.surface, m.stream)
		} else {
			m.loop, cmd = m.loop.Start(m.surface, nil)
		}
		return cmd, nil

	case session.StopRenderLoop:
		m.loop = m.loop.Stop()
		// A new stream gets a fresh, unlocked surface.
		m.surface = render.SurfaceFor(m.machine.PromptWidth, m.machine.PromptHeight)
		return nil, nil

	case session.LoadPrompt:
		return m.loadPrompt(), nil

	case session.StartPrompt:
		if err := m.deps.Prompt.Play(m.ctx); err != nil {
			if errors.Is(err, prompt.ErrAutoplayRejected) {
				return nil, []session.Event{session.PromptAutoplayRejected{}}
			}
			return nil, []session.Event{session.PromptFailed{Err: err}}
		}
		return nil, nil

	case session.StopPrompt:
		if m.machine.State == session.StateStopping {
			m.deps.Prompt.Stop()
		} else {
			m.deps.Prompt.Reset()
		}
		return nil, nil

	case session.PlayPromptManually:
		m.deps.Prompt.PlayManual()
		return nil, nil

	case session.AcquireStream:
		return m.acquire(e), nil

	case session.ReleaseStream:
		if m.stream != nil {
			m.deps.Devices.Release(m.stream)
			m.stream = nil
		}
		return nil, nil

	case session.StartCapture:
		if m.stream == nil {
			return nil, []session.Event{session.CaptureFailed{Err: errors.New("no camera stream")}}
		}
		m.surface.Lock()
		if err := m.deps.Recorder.Start(m.ctx, m.stream, m.opts.MimeProfile); err != nil {
			return nil, []session.Event{session.CaptureFailed{Err: err}}
		}
		return nil, nil

	case session.StopCapture:
		rec := m.deps.Recorder
		return func() tea.Msg {
			r, err := rec.Stop()
			return eventMsg{session.CaptureStopped{Recording: r, Err: err}}
		}, nil

	case session.DiscardCapture:
		m.deps.Recorder.Discard()
		return nil, nil

	case session.ScheduleProgressPoll:
		player, gen := m.deps.Prompt, e.Gen
		return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
			return eventMsg{session.ProgressTick{Gen: gen, Progress: player.Progress()}}
		}), nil

	case session.ClearProgressPoll:
		// The machine drops ticks from retired poll generations.
		return nil, nil

	case session.RequestSubmit:
		return nil, []session.Event{session.Submit{}}

	case session.Upload:
		return m.upload(e), nil

	case session.PersistTake:
		m.persist(e)
		return nil, nil

	case session.RefreshDashboard:
		client, sc, ctx := m.deps.Merge, m.deps.Session, m.ctx
		return func() tea.Msg {
			url, err := client.LatestVideoURL(ctx, sc)
			return eventMsg{session.DashboardRefreshed{URL: url, Err: err}}
		}, nil

	case session.AcceptTake:
		client, sc, ctx, log := m.deps.Merge, m.deps.Session, m.ctx, m.log
		return func() tea.Msg {
			if err := client.Accept(ctx, e.ResponseID, e.VideoURL, sc); err != nil {
				log.Warn("accept failed", zap.String("response_id", e.ResponseID), zap.Error(err))
				return eventMsg{session.AcceptFailed{Err: err}}
			}
			log.Info("take accepted", zap.String("response_id", e.ResponseID))
			return eventMsg{session.AcceptSucceeded{}}
		}, nil
	}
	return nil, nil
}

func (m *Model) loadPrompt() tea.Cmd {
	player, ctx, path, log := m.deps.Prompt, m.ctx, m.opts.PromptPath, m.log
	return func() tea.Msg {
		meta, err := player.Load(ctx, path)
		if err != nil {
			log.Error("prompt unavailable", zap.String("path", path), zap.Error(err))
			return eventMsg{session.PromptFailed{Err: err}}
		}
		log.Info("prompt loaded",
			zap.String("path", meta.Source),
			zap.Duration("duration", meta.Duration),
			zap.Int("width", meta.Width),
			zap.Int("height", meta.Height))
		return eventMsg{session.PromptLoaded{Width: meta.Width, Height: meta.Height}}
	}
}

func (m *Model) acquire(e session.AcquireStream) tea.Cmd {
	if !m.surface.Locked() {
		m.surface.Resize(e.Width, e.Height)
	}
	devices, ctx := m.deps.Devices, m.ctx
	c := device.Constraints{
		IdealWidth:  m.surface.Width,
		IdealHeight: m.surface.Height,
		FrameRate:   m.opts.FrameRate,
		Audio:       true,
	}
	return func() tea.Msg {
		h, err := devices.Acquire(ctx, c)
		return streamMsg{handle: h, err: err}
	}
}

func (m *Model) upload(e session.Upload) tea.Cmd {
	client, sc, ctx, notify, log := m.deps.Merge, m.deps.Session, m.ctx, m.notify, m.log
	ref, takeID := m.machine.PromptRef, m.machine.TakeID
	rec := e.Recording
	return func() tea.Msg {
		log.Info("merge submitted", zap.String("take_id", takeID), zap.Int("bytes", len(rec.Data)))
		res, warnings, err := client.Submit(ctx, rec, ref, sc, func(sent, total int64) {
			select {
			case notify <- session.UploadProgress{Sent: sent, Total: total}:
			default:
			}
		})
		if err != nil {
			log.Error("merge failed", zap.String("take_id", takeID), zap.Error(err))
			return eventMsg{session.MergeFailed{Err: err, Warnings: warnings}}
		}
		log.Info("merge succeeded", zap.String("take_id", takeID), zap.String("response_id", res.ResponseID))
		return eventMsg{session.MergeSucceeded{
			Result:    res,
			MergedURL: client.MergedURL(res.MergedVideoURL),
			Warnings:  warnings,
		}}
	}
}

// persist stores the take record. A recording is spooled first so a failed
// merge can be retried after exit.
func (m *Model) persist(e session.PersistTake) {
	if m.deps.Store == nil {
		return
	}
	take := e.Take
	if e.Recording != nil {
		path, err := m.deps.Store.SaveRecording(take.ID, e.Recording)
		if err != nil {
			m.log.Warn("could not spool recording", zap.String("take_id", take.ID), zap.Error(err))
		} else {
			m.spoolPath = path
		}
	}
	take.SpoolPath = m.spoolPath
	if err := m.deps.Store.Save(&take); err != nil {
		m.log.Warn("could not persist take", zap.String("take_id", take.ID), zap.Error(err))
	}
}
