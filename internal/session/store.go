package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fakeyudi/cuecam/internal/capture"
)

// ErrNoTake is returned by Load when no take has been recorded yet.
var ErrNoTake = errors.New("no recorded take")

// TakeStore persists the last take and its raw recording.
type TakeStore interface {
	Save(t *Take) error
	Load() (*Take, error) // returns ErrNoTake if none exists
	Delete() error
	// SaveRecording spools rec for take id and returns the file path.
	SaveRecording(id string, rec *capture.Recording) (string, error)
	LoadRecording(t *Take) (*capture.Recording, error)
}

// diskStore is the concrete TakeStore that writes to the XDG data directory.
type diskStore struct {
	path     string // full path to take.json
	takesDir string // spooled recordings
}

// NewTakeStore returns a TakeStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/cuecam/take.json or ~/.local/share/cuecam/take.json
func NewTakeStore() (TakeStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	takes := filepath.Join(dir, "takes")
	if err := os.MkdirAll(takes, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "take.json"), takesDir: takes}, nil
}

// DataDir returns the cuecam-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "cuecam"), nil
}

// Save marshals t to JSON and writes it atomically.
func (d *diskStore) Save(t *Take) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist take: %w", err)
	}
	if err := writeAtomic(d.path, data); err != nil {
		return fmt.Errorf("failed to persist take: %w", err)
	}
	return nil
}

// Load reads and unmarshals the take file.
// Returns ErrNoTake if the file does not exist.
func (d *diskStore) Load() (*Take, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoTake
		}
		return nil, fmt.Errorf("failed to read take: %w", err)
	}

	var t Take
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse take: %w", err)
	}
	return &t, nil
}

// Delete removes the take file and every spooled recording.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete take: %w", err)
	}
	entries, err := os.ReadDir(d.takesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete recordings: %w", err)
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(d.takesDir, e.Name()))
	}
	return nil
}

// SaveRecording writes rec to <takes>/<id><ext>. Only the newest recording is
// kept; older spools are removed.
func (d *diskStore) SaveRecording(id string, rec *capture.Recording) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid take id %q", id)
	}
	path := filepath.Join(d.takesDir, id+rec.Extension())
	if err := writeAtomic(path, rec.Data); err != nil {
		return "", fmt.Errorf("failed to spool recording: %w", err)
	}
	entries, _ := os.ReadDir(d.takesDir)
	for _, e := range entries {
		if p := filepath.Join(d.takesDir, e.Name()); p != path && !strings.HasSuffix(e.Name(), ".tmp") {
			_ = os.Remove(p)
		}
	}
	return path, nil
}

// LoadRecording reads the spooled recording of t.
func (d *diskStore) LoadRecording(t *Take) (*capture.Recording, error) {
	if t.SpoolPath == "" {
		return nil, capture.ErrEmptyRecording
	}
	data, err := os.ReadFile(t.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	if len(data) == 0 {
		return nil, capture.ErrEmptyRecording
	}
	mime := t.MimeType
	if mime == "" {
		mime = capture.DefaultMimeProfile
	}
	return &capture.Recording{Data: data, MimeType: mime, Chunks: t.Chunks}, nil
}

// writeAtomic writes data to a temp file in the same directory, then renames
// it over path.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
