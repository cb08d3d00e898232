package session

import "github.com/fakeyudi/cuecam/internal/capture"

// Effect is an action the runtime must perform after a transition. Effects
// are returned in the order they must run.
type Effect interface{ effect() }

type (
	StartRenderLoop struct{}
	StopRenderLoop  struct{}

	LoadPrompt         struct{}
	StartPrompt        struct{}
	StopPrompt         struct{}
	PlayPromptManually struct{}

	// AcquireStream asks for a stream sized for a prompt of Width x Height.
	AcquireStream struct{ Width, Height int }
	ReleaseStream struct{}

	StartCapture   struct{}
	StopCapture    struct{}
	DiscardCapture struct{}

	// ScheduleProgressPoll samples prompt progress after one poll interval
	// and reports it as ProgressTick{Gen}.
	ScheduleProgressPoll struct{ Gen int }
	ClearProgressPoll    struct{}

	// RequestSubmit asks the runtime to apply Submit.
	RequestSubmit struct{}
	// Upload sends Recording to the merge server.
	Upload struct{ Recording *capture.Recording }
	// PersistTake stores the take record, spooling Recording when set.
	PersistTake struct {
		Take      Take
		Recording *capture.Recording
	}
	RefreshDashboard struct{}
	AcceptTake       struct{ ResponseID, VideoURL string }
)

func (StartRenderLoop) effect()      {}
func (StopRenderLoop) effect()       {}
func (LoadPrompt) effect()           {}
func (StartPrompt) effect()          {}
func (StopPrompt) effect()           {}
func (PlayPromptManually) effect()   {}
func (AcquireStream) effect()        {}
func (ReleaseStream) effect()        {}
func (StartCapture) effect()         {}
func (StopCapture) effect()          {}
func (DiscardCapture) effect()       {}
func (ScheduleProgressPoll) effect() {}
func (ClearProgressPoll) effect()    {}
func (RequestSubmit) effect()        {}
func (Upload) effect()               {}
func (PersistTake) effect()          {}
func (RefreshDashboard) effect()     {}
func (AcceptTake) effect()           {}
