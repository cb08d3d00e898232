package session

import (
	"time"

	"github.com/fakeyudi/cuecam/internal/capture"
	"github.com/fakeyudi/cuecam/internal/merge"
)

// Event is an input to the session machine.
type Event interface{ event() }

type (
	// Init is applied once when the preview opens.
	Init struct{}

	// PromptLoaded reports the prompt's native dimensions.
	PromptLoaded struct{ Width, Height int }
	// PromptFailed reports a prompt load or playback failure.
	PromptFailed struct{ Err error }
	// PromptAutoplayRejected means playback needs a manual start.
	PromptAutoplayRejected struct{}
	// PromptAssetChanged reports a change to the prompt file on disk.
	PromptAssetChanged struct {
		Removed bool
		Err     error // diagnostic for a removed asset
	}
	// PlayManually is the user's request to start a blocked prompt.
	PlayManually struct{}

	// StreamAcquired and StreamFailed report the outcome of AcquireStream.
	StreamAcquired struct{}
	StreamFailed   struct{ Err error }
	// StreamLost reports a stream that died after it was acquired.
	StreamLost struct{ Err error }

	// Start begins a take. TakeID and At are supplied by the caller.
	Start struct {
		TakeID string
		At     time.Time
	}
	// UserStop ends a take before the prompt completes.
	UserStop struct{}
	// ProgressTick carries the prompt progress sampled by poll Gen.
	ProgressTick struct {
		Gen      int
		Progress float64
	}
	// ChunkCaptured reports a chunk kept by the recorder.
	ChunkCaptured struct{ Seq, Size, Total int }
	// CaptureFailed reports an encoder failure during a take.
	CaptureFailed struct{ Err error }
	// CaptureStopped delivers the finalized recording or the stop error.
	CaptureStopped struct {
		Recording *capture.Recording
		Err       error
	}

	// Submit hands the reviewed recording to the merge server.
	Submit struct{}
	// Retry resubmits a retained recording after a failed merge.
	Retry struct{}
	// UploadProgress reports bytes of the upload body prepared so far.
	UploadProgress struct{ Sent, Total int64 }
	// MergeSucceeded carries the server's result. MergedURL is the resolved
	// location of the merged video.
	MergeSucceeded struct {
		Result    merge.Result
		MergedURL string
		Warnings  []merge.Warning
	}
	// MergeFailed carries the failed merge error.
	MergeFailed struct {
		Err      error
		Warnings []merge.Warning
	}
	// DashboardRefreshed carries the merged video URL the server reports.
	DashboardRefreshed struct {
		URL string
		Err error
	}

	// Accept confirms the merged take.
	Accept          struct{}
	AcceptSucceeded struct{}
	AcceptFailed    struct{ Err error }

	// Restart discards the take and reacquires the stream.
	Restart struct{}
	// Teardown releases everything before exit.
	Teardown struct{}
)

func (Init) event()                   {}
func (PromptLoaded) event()           {}
func (PromptFailed) event()           {}
func (PromptAutoplayRejected) event() {}
func (PromptAssetChanged) event()     {}
func (PlayManually) event()           {}
func (StreamAcquired) event()         {}
func (StreamFailed) event()           {}
func (StreamLost) event()             {}
func (Start) event()                  {}
func (UserStop) event()               {}
func (ProgressTick) event()           {}
func (ChunkCaptured) event()          {}
func (CaptureFailed) event()          {}
func (CaptureStopped) event()         {}
func (Submit) event()                 {}
func (Retry) event()                  {}
func (UploadProgress) event()         {}
func (MergeSucceeded) event()         {}
func (MergeFailed) event()            {}
func (DashboardRefreshed) event()     {}
func (Accept) event()                 {}
func (AcceptSucceeded) event()        {}
func (AcceptFailed) event()           {}
func (Restart) event()                {}
func (Teardown) event()               {}
