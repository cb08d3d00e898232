// Package capture encodes the live stream into media chunks and assembles
// them into a single recording.
package capture

import (
	"errors"
	"strings"
)

// DefaultMimeProfile is the container and codec the merge server expects.
const DefaultMimeProfile = "video/webm;codecs=vp9"

// ErrEmptyRecording is returned when a take produced no media at all.
var ErrEmptyRecording = errors.New("No video data was recorded")

// Recording is a finalized take.
type Recording struct {
	Data     []byte
	MimeType string
	Chunks   int
}

// Extension returns the file extension matching the recording's container.
func (r *Recording) Extension() string {
	if strings.HasPrefix(r.MimeType, "video/mp4") {
		return ".mp4"
	}
	return ".webm"
}

// Buffer is an ordered, append-only list of encoded chunks.
type Buffer struct {
	chunks [][]byte
	size   int
}

// Append adds a chunk. Zero-length chunks are discarded; it reports whether
// b was kept.
func (b *Buffer) Append(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	return true
}

// Len is the number of chunks held.
func (b *Buffer) Len() int { return len(b.chunks) }

// Size is the total number of bytes held.
func (b *Buffer) Size() int { return b.size }

// Reset drops every chunk.
func (b *Buffer) Reset() {
	b.chunks = nil
	b.size = 0
}

// Finalize concatenates the chunks in arrival order. It fails with
// ErrEmptyRecording when nothing was captured.
func (b *Buffer) Finalize(mimeType string) (*Recording, error) {
	if len(b.chunks) == 0 {
		return nil, ErrEmptyRecording
	}
	data := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		data = append(data, c...)
	}
	return &Recording{Data: data, MimeType: mimeType, Chunks: len(b.chunks)}, nil
}
