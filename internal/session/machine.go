// Package session holds the recording session state machine and the store
// for the last take.
//
// The machine is a pure transition function: Apply maps the current state
// and an event to the next state and the effects the runtime must perform,
// in order. It never blocks and performs no I/O.
package session

import (
	"errors"
	"slices"
	"time"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/merge"
)

// State is the single source of truth for what the session is doing.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateReviewing
	StateMerging
	StateMergedReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateReviewing:
		return "reviewing"
	case StateMerging:
		return "merging"
	case StateMergedReady:
		return "merged"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Cause explains why the session is in StateError.
type Cause int

const (
	CauseNone Cause = iota
	CausePrompt
	CauseCapture
	CauseEmptyRecording
	CauseMergeFailed
)

func (c Cause) String() string {
	switch c {
	case CausePrompt:
		return "prompt"
	case CauseCapture:
		return "capture"
	case CauseEmptyRecording:
		return "empty recording"
	case CauseMergeFailed:
		return "merge failed"
	}
	return "none"
}

// DefaultThreshold is the prompt progress at which a take stops itself.
const DefaultThreshold = 99.5

// Diagnostics shown to the user.
const (
	msgAutoplayHint     = "Prompt playback was blocked. Press p to start it manually."
	msgMissingResponse  = "responseId is missing. Cannot update video URL."
	msgAccepted         = "Video Accepted and URL updated!"
	msgAcceptFailed     = "Failed to update video URL."
	msgNotReady         = "Cannot start yet: the camera and the prompt must both be ready."
	msgAlreadyActive    = "A recording or merge is already in progress."
	msgNothingToProcess = "No recording data available to process"
)

// Options configure a new machine.
type Options struct {
	// Threshold is the auto-stop progress; DefaultThreshold when zero.
	Threshold float64
	// PromptRef identifies the prompt to the merge server.
	PromptRef string
}

// Machine is the recording session state. It is a value: Apply returns an
// updated copy and never mutates the receiver.
type Machine struct {
	State      State
	Cause      Cause
	Diagnostic string
	// Hint is a non-fatal prompt for user action, such as a blocked autoplay.
	Hint     string
	Warnings []string

	Threshold float64
	PromptRef string

	PromptReady  bool
	PromptStale  bool
	PromptWidth  int
	PromptHeight int
	StreamReady  bool
	Acquiring    bool
	Closed       bool

	TakeID     string
	RecordedAt time.Time
	Progress   float64
	Chunks     int
	Bytes      int
	Recording  *capture.Recording

	UploadSent  int64
	UploadTotal int64
	Result      *merge.Result
	MergedURL   string
	Accepting   bool
	Accepted    bool

	pollGen int
}

// New returns an idle machine.
func New(opts Options) Machine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return Machine{Threshold: opts.Threshold, PromptRef: opts.PromptRef}
}

// Reviewing reports whether a finalized take awaits submission.
func (m Machine) Reviewing() bool { return m.State == StateReviewing }

// Merging reports whether an upload is in flight.
func (m Machine) Merging() bool { return m.State == StateMerging }

// Complete reports whether a merged result is ready.
func (m Machine) Complete() bool { return m.State == StateMergedReady }

// CanStart reports whether Start would be accepted.
func (m Machine) CanStart() bool {
	return m.State == StateIdle && m.StreamReady && m.PromptReady && !m.Closed
}

// CanRestart reports whether Restart would be accepted.
func (m Machine) CanRestart() bool {
	if m.Closed {
		return false
	}
	switch m.State {
	case StateReviewing, StateMergedReady, StateError:
		return true
	case StateIdle:
		return !m.StreamReady && !m.Acquiring
	}
	return false
}

// CanRetry reports whether a retained recording can be resubmitted.
func (m Machine) CanRetry() bool {
	return m.State == StateError && m.Cause == CauseMergeFailed && m.Recording != nil
}

// CanAccept reports whether the merged take can be accepted.
func (m Machine) CanAccept() bool {
	return m.State == StateMergedReady && !m.Accepting && !m.Accepted
}

// PollGen is the generation of the active progress poll.
func (m Machine) PollGen() int { return m.pollGen }

// Apply performs one transition.
func (m Machine) Apply(ev Event) (Machine, []Effect) {
	if m.Closed {
		// A stream that finishes acquiring after teardown must still be released.
		if _, ok := ev.(StreamAcquired); ok {
			return m, []Effect{ReleaseStream{}}
		}
		return m, nil
	}

	switch ev := ev.(type) {
	case Init:
		return m, []Effect{StartRenderLoop{}, LoadPrompt{}}

	case PromptLoaded:
		m.PromptReady = true
		m.PromptStale = false
		m.PromptWidth, m.PromptHeight = ev.Width, ev.Height
		if m.State == StateIdle && !m.StreamReady && !m.Acquiring {
			m.Acquiring = true
			return m, []Effect{AcquireStream{Width: ev.Width, Height: ev.Height}}
		}
		return m, nil

	case PromptFailed:
		m.Diagnostic = errText(ev.Err)
		if m.State == StateRecording {
			m.State = StateError
			m.Cause = CausePrompt
			m.pollGen++
			return m, []Effect{ClearProgressPoll{}, StopPrompt{}, DiscardCapture{}}
		}
		if m.State == StateIdle {
			m.PromptReady = false
		}
		return m, nil

	case PromptAutoplayRejected:
		if m.State == StateRecording {
			m.Hint = msgAutoplayHint
		}
		return m, nil

	case PlayManually:
		if m.State == StateRecording && m.Hint == msgAutoplayHint {
			m.Hint = ""
			return m, []Effect{PlayPromptManually{}}
		}
		return m, nil

	case PromptAssetChanged:
		m.PromptStale = true
		if ev.Removed && m.State == StateIdle {
			m.PromptReady = false
			m.Diagnostic = errText(ev.Err)
		}
		return m, nil

	case StreamAcquired:
		m.Acquiring = false
		m.StreamReady = true
		return m, nil

	case StreamFailed:
		m.Acquiring = false
		m.StreamReady = false
		m.Diagnostic = errText(ev.Err)
		return m, nil

	case StreamLost:
		if !m.StreamReady {
			return m, nil
		}
		m.StreamReady = false
		m.Diagnostic = errText(ev.Err)
		if m.State == StateRecording {
			m.State = StateError
			m.Cause = CauseCapture
			m.pollGen++
			return m, []Effect{ClearProgressPoll{}, StopPrompt{}, DiscardCapture{}, ReleaseStream{}}
		}
		return m, []Effect{ReleaseStream{}}

	case Start:
		if m.State != StateIdle {
			m.Diagnostic = msgAlreadyActive
			return m, nil
		}
		if !m.StreamReady || !m.PromptReady {
			m.Diagnostic = msgNotReady
			return m, nil
		}
		m = m.clearTake()
		m.State = StateRecording
		m.TakeID = ev.TakeID
		m.RecordedAt = ev.At
		m.pollGen++
		return m, []Effect{
			DiscardCapture{},
			StartCapture{},
			StartPrompt{},
			ScheduleProgressPoll{Gen: m.pollGen},
		}

	case UserStop:
		if m.State != StateRecording {
			return m, nil
		}
		return m.stop()

	case ProgressTick:
		if m.State != StateRecording || ev.Gen != m.pollGen {
			return m, nil
		}
		if ev.Progress > m.Progress {
			m.Progress = min(ev.Progress, 100)
		}
		if m.Progress >= m.Threshold {
			return m.stop()
		}
		return m, []Effect{ScheduleProgressPoll{Gen: m.pollGen}}

	case ChunkCaptured:
		if m.State == StateRecording || m.State == StateStopping {
			m.Chunks = ev.Seq
			m.Bytes = ev.Total
		}
		return m, nil

	case CaptureFailed:
		if m.State != StateRecording && m.State != StateStopping {
			return m, nil
		}
		m.State = StateError
		m.Cause = CauseCapture
		m.Diagnostic = errText(ev.Err)
		m.pollGen++
		return m, []Effect{ClearProgressPoll{}, StopPrompt{}, DiscardCapture{}}

	case CaptureStopped:
		if m.State != StateStopping {
			return m, nil
		}
		if ev.Err != nil || ev.Recording == nil {
			m.State = StateError
			m.Cause = CauseCapture
			if ev.Err == nil || errors.Is(ev.Err, capture.ErrEmptyRecording) {
				m.Cause = CauseEmptyRecording
				m.Diagnostic = capture.ErrEmptyRecording.Error()
			} else {
				m.Diagnostic = errText(ev.Err)
			}
			return m, []Effect{DiscardCapture{}}
		}
		m.State = StateReviewing
		m.Recording = ev.Recording
		m.Chunks = ev.Recording.Chunks
		m.Bytes = len(ev.Recording.Data)
		return m, []Effect{
			PersistTake{Take: m.take(TakeRecorded), Recording: ev.Recording},
			RequestSubmit{},
		}

	case Submit:
		if m.State != StateReviewing {
			return m, nil
		}
		if m.Recording == nil {
			m.Diagnostic = msgNothingToProcess
			return m, nil
		}
		return m.upload()

	case Retry:
		if !m.CanRetry() {
			return m, nil
		}
		return m.upload()

	case UploadProgress:
		if m.State == StateMerging {
			m.UploadSent, m.UploadTotal = ev.Sent, ev.Total
		}
		return m, nil

	case MergeSucceeded:
		if m.State != StateMerging {
			return m, nil
		}
		res := ev.Result
		m.State = StateMergedReady
		m.Result = &res
		m.MergedURL = ev.MergedURL
		m.Warnings = warningText(ev.Warnings)
		if len(m.Warnings) > 0 {
			m.Diagnostic = m.Warnings[0]
		}
		return m, []Effect{PersistTake{Take: m.take(TakeMerged)}, RefreshDashboard{}}

	case MergeFailed:
		if m.State != StateMerging {
			return m, nil
		}
		m.State = StateError
		m.Cause = CauseMergeFailed
		m.Diagnostic = merge.UserMessage(ev.Err)
		m.Warnings = warningText(ev.Warnings)
		t := m.take(TakeMergeFailed)
		t.Error = errText(ev.Err)
		return m, []Effect{PersistTake{Take: t}}

	case DashboardRefreshed:
		if m.State != StateMergedReady {
			return m, nil
		}
		if ev.Err != nil {
			m.Warnings = append(slices.Clip(m.Warnings), "Error fetching updated data after merge: "+ev.Err.Error())
			return m, nil
		}
		if ev.URL != "" && ev.URL != m.MergedURL {
			m.MergedURL = ev.URL
			return m, []Effect{PersistTake{Take: m.take(TakeMerged)}}
		}
		return m, nil

	case Accept:
		if !m.CanAccept() {
			return m, nil
		}
		if m.Result == nil || m.Result.ResponseID == "" {
			m.Diagnostic = msgMissingResponse
			return m, nil
		}
		m.Accepting = true
		return m, []Effect{AcceptTake{ResponseID: m.Result.ResponseID, VideoURL: m.MergedURL}}

	case AcceptSucceeded:
		if m.State != StateMergedReady || !m.Accepting {
			return m, nil
		}
		m.Accepting = false
		m.Accepted = true
		m.Diagnostic = msgAccepted
		return m, []Effect{PersistTake{Take: m.take(TakeAccepted)}}

	case AcceptFailed:
		if m.State != StateMergedReady || !m.Accepting {
			return m, nil
		}
		m.Accepting = false
		m.Diagnostic = msgAcceptFailed
		if ev.Err != nil {
			m.Diagnostic += " " + ev.Err.Error()
		}
		return m, nil

	case Restart:
		if !m.CanRestart() {
			return m, nil
		}
		effects := []Effect{
			StopRenderLoop{},
			ClearProgressPoll{},
			ReleaseStream{},
			DiscardCapture{},
			StopPrompt{},
			StartRenderLoop{},
		}
		reload := m.PromptStale || !m.PromptReady
		m = m.clearTake()
		m.State = StateIdle
		m.StreamReady = false
		m.pollGen++
		if reload {
			m.PromptReady = false
			m.Acquiring = false
			return m, append(effects, LoadPrompt{})
		}
		m.Acquiring = true
		return m, append(effects, AcquireStream{Width: m.PromptWidth, Height: m.PromptHeight})

	case Teardown:
		m.Closed = true
		m.StreamReady = false
		m.pollGen++
		return m, []Effect{
			StopRenderLoop{},
			ClearProgressPoll{},
			ReleaseStream{},
			DiscardCapture{},
			StopPrompt{},
		}
	}
	return m, nil
}

// stop moves a take into Stopping. The poll generation is bumped so no
// further tick can trigger a second stop.
func (m Machine) stop() (Machine, []Effect) {
	m.State = StateStopping
	m.pollGen++
	return m, []Effect{ClearProgressPoll{}, StopCapture{}, StopPrompt{}}
}

func (m Machine) upload() (Machine, []Effect) {
	m.State = StateMerging
	m.Cause = CauseNone
	m.Diagnostic = ""
	m.UploadSent, m.UploadTotal = 0, int64(len(m.Recording.Data))
	return m, []Effect{Upload{Recording: m.Recording}}
}

// clearTake drops everything that belongs to one recording attempt.
func (m Machine) clearTake() Machine {
	m.Cause = CauseNone
	m.Diagnostic = ""
	m.Hint = ""
	m.Warnings = nil
	m.TakeID = ""
	m.RecordedAt = time.Time{}
	m.Progress = 0
	m.Chunks = 0
	m.Bytes = 0
	m.Recording = nil
	m.UploadSent, m.UploadTotal = 0, 0
	m.Result = nil
	m.MergedURL = ""
	m.Accepting = false
	m.Accepted = false
	return m
}

func (m Machine) take(status TakeStatus) Take {
	t := Take{
		ID:             m.TakeID,
		RecordedAt:     m.RecordedAt,
		Status:         status,
		Chunks:         m.Chunks,
		Bytes:          m.Bytes,
		PromptRef:      m.PromptRef,
		MergedVideoURL: m.MergedURL,
		Accepted:       m.Accepted,
	}
	if m.Recording != nil {
		t.MimeType = m.Recording.MimeType
	}
	if m.Result != nil {
		t.ResponseID = m.Result.ResponseID
	}
	return t
}

func errText(err error) string {
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}

func warningText(ws []merge.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = string(w)
	}
	return out
}
