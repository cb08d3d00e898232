package device

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorKind classifies why a device or the prompt asset could not be used.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	PermissionDenied
	NotFound
	PromptUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case NotFound:
		return "not found"
	case PromptUnavailable:
		return "prompt unavailable"
	default:
		return "unknown"
	}
}

// Error is returned when a camera, microphone or prompt asset cannot be acquired.
type Error struct {
	Kind ErrorKind
	Path string // device node or asset path that was attempted
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case PermissionDenied:
		return fmt.Sprintf("permission denied for %s: allow camera and microphone access and try again", e.Path)
	case NotFound:
		return fmt.Sprintf("device %s not found", e.Path)
	case PromptUnavailable:
		msg := "Unknown error"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return fmt.Sprintf("Prerecorded video error: %s. Ensure the file is correctly located at: %s", msg, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("device %s: %v", e.Path, e.Err)
		}
		return fmt.Sprintf("device %s: unknown error", e.Path)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a device *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == k
}

// Classify maps a low-level failure (filesystem or ffmpeg stderr) to an *Error.
// stderr may be empty.
func Classify(path string, err error, stderr string) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	kind := Unknown
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	case strings.Contains(stderr, "Permission denied"), strings.Contains(stderr, "not authorized"):
		kind = PermissionDenied
	case strings.Contains(stderr, "No such file or directory"), strings.Contains(stderr, "Cannot find"):
		kind = NotFound
	}
	if err == nil && stderr != "" {
		err = errors.New(lastLine(stderr))
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
