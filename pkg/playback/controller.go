// Package playback implements the per-sound playback controller: a small state
// machine that owns one audio Resource and exposes play, stop, volume and mute.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

var (
	ErrClosed        = errors.New("controller is closed")
	ErrInvalidVolume = errors.New("invalid volume")
)

const (
	loadErrorMessage = "Error loading audio"
	playErrorMessage = "Failed to play audio"
)

// ControllerConfig contains configuration parameters used by NewController. It
// should be created with NewControllerConfig to provide default values.
type ControllerConfig struct {
	Path   string // Locator passed to Opener.Open.
	Opener Opener

	Volume float64 // Initial volume. (Default: 1)
	Muted  bool    // Initial mute flag. (Default: false)

	// OnChange, if set, is called with the new state after every change. It is
	// called from the controller's goroutine, so it must not block or call
	// back into the controller.
	OnChange func(State)
}

// NewControllerConfig creates a new ControllerConfig object with default
// values.
func NewControllerConfig(path string, opener Opener) *ControllerConfig {
	return &ControllerConfig{
		Path:   path,
		Opener: opener,
		Volume: 1,
	}
}

// A Controller owns the playback state of a single sound. All commands and
// resource events are handled in order by one goroutine, so a Controller never
// has more than one play attempt in flight. Controllers are independent of
// each other.
//
// Command methods return a channel that receives once the command has been
// handled. They do not wait for loading or playback to finish.
type Controller struct {
	path     string
	opener   Opener
	onChange func(State)

	commands chan controllerCommandWrapper
	stopped  chan struct{}

	stateMutex sync.Mutex
	state      State

	// owned by mainLoop

	status  Status
	volume  float64
	muted   bool
	errText string

	res     Resource
	ready   bool
	loadErr error
	readyCh <-chan error
	startCh <-chan error
	endedCh <-chan error
}

type controllerCommand interface{}

type controllerCommandWrapper struct {
	command controllerCommand
	done    chan error
}

type (
	controllerCommandPlay       struct{}
	controllerCommandStop       struct{}
	controllerCommandSetVolume  struct{ volume float64 }
	controllerCommandToggleMute struct{}
	controllerCommandClose      struct{}
)

// NewController creates a Controller and acquires its first Resource.
func NewController(config *ControllerConfig) (*Controller, error) {
	if config.Opener == nil {
		return nil, fmt.Errorf("Opener is nil")
	}
	if math.IsNaN(config.Volume) {
		return nil, ErrInvalidVolume
	}

	c := &Controller{
		path:     config.Path,
		opener:   config.Opener,
		onChange: config.OnChange,
		commands: make(chan controllerCommandWrapper),
		stopped:  make(chan struct{}),
		status:   StatusIdle,
		volume:   clampVolume(config.Volume),
		muted:    config.Muted,
	}
	c.acquire()
	c.state = c.snapshot()

	go c.mainLoop()
	return c, nil
}

// Path returns the locator of the controlled sound.
func (c *Controller) Path() string {
	return c.path
}

// State returns the most recent state of the controller.
func (c *Controller) State() State {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	return c.state
}

// Play starts playback from the beginning. It does nothing while a previous
// play attempt is still loading.
func (c *Controller) Play() chan error {
	return c.sendCommand(controllerCommandPlay{})
}

// Stop halts playback and rewinds. It does nothing while loading or idle.
func (c *Controller) Stop() chan error {
	return c.sendCommand(controllerCommandStop{})
}

// SetVolume stores a new volume, clamped to [0, 1], and clears mute. NaN is
// rejected with ErrInvalidVolume.
func (c *Controller) SetVolume(volume float64) chan error {
	return c.sendCommand(controllerCommandSetVolume{volume: volume})
}

// ToggleMute flips the mute flag.
func (c *Controller) ToggleMute() chan error {
	return c.sendCommand(controllerCommandToggleMute{})
}

// Close releases the Resource and stops the controller. Later commands fail
// with ErrClosed.
func (c *Controller) Close() error {
	return <-c.sendCommand(controllerCommandClose{})
}

func (c *Controller) sendCommand(command controllerCommand) chan error {
	done := make(chan error, 1)
	select {
	case c.commands <- controllerCommandWrapper{command, done}:
	case <-c.stopped:
		done <- ErrClosed
	}
	return done
}

func (c *Controller) mainLoop() {
	defer close(c.stopped)

	for {
		select {
		case wrapper := <-c.commands:
			if _, ok := wrapper.command.(controllerCommandClose); ok {
				c.release()
				c.status = StatusIdle
				c.publish()
				wrapper.done <- nil
				return
			}
			// state is published before done fires so callers observe it
			err := c.handleCommand(wrapper.command)
			c.publish()
			wrapper.done <- err
			continue

		case err := <-c.readyCh:
			c.readyCh = nil
			c.handleReady(err)

		case err := <-c.startCh:
			c.startCh = nil
			c.handleStarted(err)

		case err := <-c.endedCh:
			c.handleEnded(err)
		}

		c.publish()
	}
}

func (c *Controller) handleCommand(command controllerCommand) error {
	switch command := command.(type) {
	case controllerCommandPlay:
		c.play()
		return nil

	case controllerCommandStop:
		c.stop()
		return nil

	case controllerCommandSetVolume:
		if math.IsNaN(command.volume) {
			return ErrInvalidVolume
		}
		volume := clampVolume(command.volume)
		changed := volume != c.volume || c.muted
		c.volume = volume
		c.muted = false
		if changed {
			c.reacquire()
		}
		return nil

	case controllerCommandToggleMute:
		c.muted = !c.muted
		c.reacquire()
		return nil
	}
	return fmt.Errorf("unknown command: %T", command)
}

func (c *Controller) play() {
	switch c.status {
	case StatusLoading:
		return
	case StatusPlaying:
		if err := c.res.Rewind(); err != nil {
			slog.Warn("rewind failed", "path", c.path, "error", err)
		}
	}

	if c.status == StatusError || c.res == nil || c.loadErr != nil {
		c.release()
		c.acquire()
	}

	c.status = StatusLoading
	c.errText = ""

	switch {
	case c.loadErr != nil:
		c.fail(loadMessage(c.loadErr))
	case c.ready:
		c.startCh = c.res.Start()
	}
	// otherwise playback starts when readyCh delivers
}

func (c *Controller) stop() {
	switch c.status {
	case StatusLoading, StatusIdle:
		return
	}

	if c.res != nil {
		c.res.Pause()
		if err := c.res.Rewind(); err != nil {
			slog.Warn("rewind failed", "path", c.path, "error", err)
		}
	}
	if c.status == StatusPlaying {
		c.status = StatusIdle
	}
}

func (c *Controller) handleReady(err error) {
	if err != nil {
		slog.Error("failed to load audio", "path", c.path, "error", err)
		c.loadErr = err
		if c.status == StatusLoading {
			c.fail(loadMessage(err))
		}
		return
	}

	c.ready = true
	if c.status == StatusLoading {
		c.errText = ""
		c.startCh = c.res.Start()
	}
}

func (c *Controller) handleStarted(err error) {
	if c.status != StatusLoading {
		return
	}
	if err != nil {
		slog.Error("playback failed", "path", c.path, "error", err)
		c.fail(playErrorMessage)
		return
	}
	c.status = StatusPlaying
}

// handleEnded moves Playing to Idle at the end of the stream, or to Error if
// playback was interrupted. A failed resource is replaced by the next Play.
func (c *Controller) handleEnded(err error) {
	if err == nil {
		if c.status == StatusPlaying {
			c.status = StatusIdle
		}
		return
	}

	slog.Error("playback interrupted", "path", c.path, "error", err)
	c.loadErr = err
	if c.status.IsActive() {
		c.fail(loadMessage(err))
	}
}

func (c *Controller) fail(message string) {
	c.status = StatusError
	c.errText = message
}

// reacquire replaces the Resource after a change of the effective level. Any
// play attempt on the old Resource is abandoned.
func (c *Controller) reacquire() {
	c.release()
	c.acquire()
	if c.status != StatusError {
		c.status = StatusIdle
	}
}

func (c *Controller) acquire() {
	c.ready = false
	c.loadErr = nil

	res, err := c.opener.Open(c.path, c.level())
	if err != nil {
		slog.Error("failed to open audio", "path", c.path, "error", err)
		c.loadErr = err
		return
	}

	c.res = res
	c.readyCh = res.Ready()
	c.endedCh = res.Ended()
}

func (c *Controller) release() {
	c.readyCh, c.startCh, c.endedCh = nil, nil, nil
	c.ready = false

	if c.res == nil {
		return
	}
	res := c.res
	c.res = nil
	if err := res.Close(); err != nil {
		slog.Warn("failed to close audio resource", "path", c.path, "error", err)
	}
}

func (c *Controller) level() float64 {
	if c.muted {
		return 0
	}
	return c.volume
}

func (c *Controller) snapshot() State {
	return State{
		Status:  c.status,
		Volume:  c.volume,
		Muted:   c.muted,
		Playing: c.status == StatusPlaying,
		Loading: c.status == StatusLoading,
		Error:   c.errText,
	}
}

func (c *Controller) publish() {
	state := c.snapshot()

	c.stateMutex.Lock()
	changed := state != c.state
	c.state = state
	c.stateMutex.Unlock()

	if changed && c.onChange != nil {
		c.onChange(state)
	}
}

func loadMessage(err error) string {
	if err == nil || err.Error() == "" {
		return loadErrorMessage
	}
	return err.Error()
}

func clampVolume(volume float64) float64 {
	return math.Max(0, math.Min(1, volume))
}
