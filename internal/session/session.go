package session

import "time"

// TakeStatus is the stage a persisted take reached.
type TakeStatus string

const (
	TakeRecorded    TakeStatus = "recorded"
	TakeMerged      TakeStatus = "merged"
	TakeMergeFailed TakeStatus = "merge_failed"
	TakeAccepted    TakeStatus = "accepted"
)

// Take is the persisted record of the most recent recording.
type Take struct {
	ID             string     `json:"id"`
	RecordedAt     time.Time  `json:"recorded_at"`
	Status         TakeStatus `json:"status"`
	MimeType       string     `json:"mime_type"`
	Bytes          int        `json:"bytes"`
	Chunks         int        `json:"chunks"`
	PromptRef      string     `json:"prompt_ref"`
	ResponseID     string     `json:"response_id,omitempty"`
	MergedVideoURL string     `json:"merged_video_url,omitempty"`
	Accepted       bool       `json:"accepted"`
	// SpoolPath is where the raw recording is kept for retries.
	SpoolPath string `json:"spool_path,omitempty"`
	Error     string `json:"error,omitempty"`
}
