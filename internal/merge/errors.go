package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies merge client failures.
type ErrorKind int

const (
	MergeFailed ErrorKind = iota + 1
	AcceptFailed
	Unreachable
)

func (k ErrorKind) String() string {
	switch k {
	case MergeFailed:
		return "merge failed"
	case AcceptFailed:
		return "accept failed"
	case Unreachable:
		return "server unreachable"
	default:
		return "unknown"
	}
}

// Error is returned for any failed server exchange.
type Error struct {
	Kind       ErrorKind
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case MergeFailed:
		return fmt.Sprintf("Failed to merge videos: %s - Detail: %s", e.StatusText, e.Body)
	case AcceptFailed:
		if e.Status != 0 {
			return fmt.Sprintf("Failed to update video URL: HTTP error! status: %d", e.Status)
		}
		if e.Err != nil {
			return "Failed to update video URL: " + e.Err.Error()
		}
		return "Failed to update video URL"
	case Unreachable:
		return fmt.Sprintf("server unreachable: %v", e.Err)
	}
	return fmt.Sprintf("merge error: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// internalServerError is the marker of a transient server-side failure.
const internalServerError = "INTERNAL SERVER ERROR"

// Transient reports whether the server signalled a temporary failure.
func (e *Error) Transient() bool {
	return e.Kind == MergeFailed &&
		(strings.Contains(strings.ToUpper(e.StatusText), internalServerError) ||
			strings.Contains(e.Body, internalServerError))
}

// UserMessage turns a merge failure into the text shown to the user.
func UserMessage(err error) string {
	var me *Error
	if errors.As(err, &me) && me.Transient() {
		return "Error: The server has encountered a temporary issue. Please try again later. If the problem persists, please contact support."
	}
	return "Error processing video: " + err.Error()
}

// Warning is a non-fatal condition noticed while talking to the server.
type Warning string

// WarnMissingUserID is emitted when the merge request is sent without a user id.
const WarnMissingUserID Warning = "User authentication issue: User ID not found. Please login again."
