// ABOUTME: Watcher reports created or modified documents in a folder
// ABOUTME: Built on fsnotify and filtered to the extensions Extract understands
package loader

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Op is what happened to a watched file
type Op int

const (
	FileCreated Op = iota
	FileModified
	FileRemoved
)

func (o Op) String() string {
	switch o {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileRemoved:
		return "removed"
	}
	return "unknown"
}

// Event is one change to a supported document
type Event struct {
	Path string
	Op   Op
}

// Watcher wraps an fsnotify watcher
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewWatcher creates a watcher; call Close when done
func NewWatcher(logger zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: w,
		logger:  logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Watch starts reporting events for dir. The channel closes when ctx is done
// or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !Supported(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
					continue
				}
				var op Op
				switch {
				case ev.Has(fsnotify.Create):
					op = FileCreated
				case ev.Has(fsnotify.Write):
					op = FileModified
				case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
					op = FileRemoved
				default:
					continue
				}
				select {
				case events <- Event{Path: ev.Name, Op: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Str("dir", dir).Msg("watch error")
			}
		}
	}()
	return events, nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
