package sounds

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/beakbeak/soundboard/pkg/events"
)

// A Watcher publishes an events.TypeSounds event whenever an audio file is
// added to, removed from or renamed in a directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching dir, creating it first if it does not exist. Events
// are published to hub until Close is called.
func Watch(dir string, hub *events.Hub) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %q: %w", dir, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w := &Watcher{watcher: fsWatcher, done: make(chan struct{})}
	go w.run(hub)
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run(hub *events.Hub) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !IsAudioFile(event.Name) {
				continue
			}
			slog.Debug("audio directory changed", "file", event.Name, "op", event.Op.String())
			hub.Publish(events.Event{Type: events.TypeSounds})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", "error", err)
		}
	}
}
