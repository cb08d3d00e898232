package prompt

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// AssetEvent reports a change to the prompt asset on disk.
type AssetEvent int

const (
	AssetChanged AssetEvent = iota
	AssetRemoved
)

func (e AssetEvent) String() string {
	if e == AssetRemoved {
		return "removed"
	}
	return "changed"
}

// Watch reports changes to the file at path until ctx is cancelled. The
// parent directory is watched so replacements by rename are seen.
func Watch(ctx context.Context, path string, fn func(AssetEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != abs {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				fn(AssetRemoved)
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				fn(AssetChanged)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}
