// Package board keeps one playback.Controller per sound for playback on the
// server's own sound device, and exposes them over a small JSON RPC API.
package board

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/beakbeak/soundboard/pkg/events"
	"github.com/beakbeak/soundboard/pkg/playback"
	"github.com/beakbeak/soundboard/pkg/sounds"
)

var ErrUnknownSound = errors.New("unknown sound")

// BoardConfig contains configuration parameters used by NewBoard.
type BoardConfig struct {
	Library *sounds.Library // Source of the entries that may be played.
	Opener  playback.Opener

	// Events, if set, receives a TypePlayback event for every controller
	// change, and its TypeSounds events make the board re-sync with the
	// library.
	Events *events.Hub
}

// EntryState is the state of one sound on the board.
type EntryState struct {
	sounds.Entry
	DisplayName string `json:"displayName"`
	playback.State
}

// A Board owns the server-side controllers, keyed by entry path. Controllers
// are created on first use and closed when their file leaves the library.
type Board struct {
	library *sounds.Library
	opener  playback.Opener
	hub     *events.Hub

	mutex       sync.Mutex
	controllers map[string]*playback.Controller
	closed      bool

	unsubscribe func()
	watchDone   chan struct{}
}

// NewBoard creates a new Board.
func NewBoard(config *BoardConfig) (*Board, error) {
	if config.Library == nil {
		return nil, fmt.Errorf("Library is nil")
	}
	if config.Opener == nil {
		return nil, fmt.Errorf("Opener is nil")
	}

	b := &Board{
		library:     config.Library,
		opener:      config.Opener,
		hub:         config.Events,
		controllers: make(map[string]*playback.Controller),
	}

	if b.hub != nil {
		ch, unsubscribe := b.hub.Subscribe()
		b.unsubscribe = unsubscribe
		b.watchDone = make(chan struct{})
		go b.watch(ch)
	}
	return b, nil
}

func (b *Board) watch(ch <-chan events.Event) {
	defer close(b.watchDone)

	for event := range ch {
		if event.Type != events.TypeSounds {
			continue
		}
		if err := b.Sync(); err != nil {
			slog.Error("failed to sync board with library", "error", err)
		}
	}
}

// Controller returns the controller for the entry at path, creating it if
// needed. It fails with ErrUnknownSound if the library has no such entry.
func (b *Board) Controller(path string) (*playback.Controller, error) {
	entry, err := b.lookup(path)
	if err != nil {
		return nil, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, playback.ErrClosed
	}
	if c, ok := b.controllers[path]; ok {
		return c, nil
	}

	config := playback.NewControllerConfig(path, b.opener)
	if b.hub != nil {
		hub := b.hub
		config.OnChange = func(state playback.State) {
			hub.Publish(events.Event{Type: events.TypePlayback, Data: newEntryState(entry, state)})
		}
	}

	c, err := playback.NewController(config)
	if err != nil {
		return nil, err
	}
	slog.Debug("controller created", "path", path)

	b.controllers[path] = c
	return c, nil
}

func (b *Board) lookup(path string) (sounds.Entry, error) {
	entries, err := b.library.Entries()
	if err != nil {
		return sounds.Entry{}, err
	}
	for _, entry := range entries {
		if entry.Path == path {
			return entry, nil
		}
	}
	return sounds.Entry{}, fmt.Errorf("%w: %q", ErrUnknownSound, path)
}

// States returns the state of every entry currently in the library. Entries
// without a controller are reported with the default idle state.
func (b *Board) States() ([]EntryState, error) {
	entries, err := b.library.Entries()
	if err != nil {
		return nil, err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	out := make([]EntryState, 0, len(entries))
	for _, entry := range entries {
		state := playback.State{Status: playback.StatusIdle, Volume: 1}
		if c, ok := b.controllers[entry.Path]; ok {
			state = c.State()
		}
		out = append(out, newEntryState(entry, state))
	}
	return out, nil
}

// Sync closes the controllers whose entries are no longer in the library.
func (b *Board) Sync() error {
	entries, err := b.library.Entries()
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		present[entry.Path] = true
	}

	var stale []*playback.Controller
	b.mutex.Lock()
	for path, c := range b.controllers {
		if !present[path] {
			stale = append(stale, c)
			delete(b.controllers, path)
		}
	}
	b.mutex.Unlock()

	for _, c := range stale {
		slog.Debug("closing controller for removed sound", "path", c.Path())
		if err := c.Close(); err != nil && !errors.Is(err, playback.ErrClosed) {
			slog.Warn("failed to close controller", "path", c.Path(), "error", err)
		}
	}
	return nil
}

// Close stops watching for library changes and closes every controller.
func (b *Board) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		<-b.watchDone
	}

	b.mutex.Lock()
	b.closed = true
	controllers := b.controllers
	b.controllers = make(map[string]*playback.Controller)
	b.mutex.Unlock()

	for _, c := range controllers {
		if err := c.Close(); err != nil && !errors.Is(err, playback.ErrClosed) {
			slog.Warn("failed to close controller", "path", c.Path(), "error", err)
		}
	}
}

func newEntryState(entry sounds.Entry, state playback.State) EntryState {
	return EntryState{
		Entry:       entry,
		DisplayName: entry.DisplayName(),
		State:       state,
	}
}
