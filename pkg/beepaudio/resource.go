// Package beepaudio plays audio files through the host's sound device. It
// provides the playback.Resource used for server-side playback.
package beepaudio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/beakbeak/soundboard/pkg/playback"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrClosed            = errors.New("audio resource is closed")
	ErrNotLoaded         = errors.New("audio resource is not loaded")
)

type decodeFunc func(file *os.File) (beep.StreamSeekCloser, beep.Format, error)

// aiff and m4a are listed by the library but have no decoder here; they fail
// to load with ErrUnsupportedFormat.
var decoders = map[string]decodeFunc{
	".mp3": func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) {
		return mp3.Decode(file)
	},
	".wav": func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) {
		return wav.Decode(file)
	},
	".flac": func(file *os.File) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(file)
	},
}

// CanDecode reports whether files with the extension of path can be played.
func CanDecode(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// OpenerConfig contains configuration parameters used by NewOpener. It should
// be created with NewOpenerConfig to provide default values.
type OpenerConfig struct {
	// SampleRate is the output rate of the sound device. Sources at other
	// rates are resampled. Only the first Opener to load a file initializes
	// the device. (Default: 44100)
	SampleRate beep.SampleRate

	// BufferDuration is the length of the device buffer. (Default: 100ms)
	BufferDuration time.Duration

	// ResampleQuality is passed to beep.Resample. (Default: 4)
	ResampleQuality int

	// Resolve maps the path given to Open to a file in the local file system.
	// (Default: filepath.FromSlash)
	Resolve func(path string) (string, error)
}

// NewOpenerConfig creates a new OpenerConfig object with default values.
func NewOpenerConfig() *OpenerConfig {
	return &OpenerConfig{
		SampleRate:      44100,
		BufferDuration:  100 * time.Millisecond,
		ResampleQuality: 4,
		Resolve: func(path string) (string, error) {
			return filepath.FromSlash(path), nil
		},
	}
}

// An Opener implements playback.Opener for local audio files.
type Opener struct {
	config OpenerConfig
}

// NewOpener creates a new Opener.
func NewOpener(config *OpenerConfig) *Opener {
	return &Opener{config: *config}
}

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

func initSpeaker(config *OpenerConfig) (beep.SampleRate, error) {
	speakerOnce.Do(func() {
		speakerRate = config.SampleRate
		speakerErr = speaker.Init(speakerRate, speakerRate.N(config.BufferDuration))
		if speakerErr != nil {
			speakerErr = fmt.Errorf("failed to initialize sound device: %w", speakerErr)
		} else {
			slog.Info("sound device initialized", "sampleRate", int(speakerRate))
		}
	})
	return speakerRate, speakerErr
}

// Open starts loading the file at path in the background and returns
// immediately. The result of loading is delivered on the resource's Ready
// channel.
func (o *Opener) Open(path string, level float64) (playback.Resource, error) {
	fsPath, err := o.config.Resolve(path)
	if err != nil {
		return nil, err
	}

	r := &resource{
		config: &o.config,
		fsPath: fsPath,
		level:  level,
		ready:  make(chan error, 1),
		ended:  make(chan error, 1),
	}
	go func() {
		r.ready <- r.load()
	}()
	return r, nil
}

// resource bundles everything needed to play one file.
type resource struct {
	config *OpenerConfig
	fsPath string
	level  float64

	ready chan error
	ended chan error

	mutex    sync.Mutex
	closed   bool
	queued   bool // ctrl is in the speaker's mixer
	file     *os.File
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
}

var _ playback.Resource = (*resource)(nil)

func (r *resource) load() error {
	ext := strings.ToLower(filepath.Ext(r.fsPath))
	decode, ok := decoders[ext]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	file, err := os.Open(r.fsPath)
	if err != nil {
		return err
	}

	streamer, format, err := decode(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to decode %q: %w", filepath.Base(r.fsPath), err)
	}

	rate, err := initSpeaker(r.config)
	if err != nil {
		closeAll(streamer, file)
		return err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != rate {
		source = beep.Resample(r.config.ResampleQuality, format.SampleRate, rate, source)
	}

	volume := &effects.Volume{Streamer: source, Base: 2}
	if r.level <= 0 {
		volume.Silent = true
	} else {
		volume.Volume = math.Log2(math.Min(r.level, 1))
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		closeAll(streamer, file)
		return ErrClosed
	}
	r.file = file
	r.streamer = streamer
	r.ctrl = &beep.Ctrl{Streamer: volume, Paused: true}
	return nil
}

func (r *resource) Ready() <-chan error {
	return r.ready
}

func (r *resource) Ended() <-chan error {
	return r.ended
}

func (r *resource) Start() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- r.start()
	}()
	return done
}

// Lock order is speaker, then r.mutex, as in finished. Holding both keeps
// Close from freeing the decoder while it is being seeked.
func (r *resource) start() error {
	speaker.Lock()
	r.mutex.Lock()

	if r.closed {
		r.mutex.Unlock()
		speaker.Unlock()
		return ErrClosed
	}
	if r.ctrl == nil {
		r.mutex.Unlock()
		speaker.Unlock()
		return ErrNotLoaded
	}

	var err error
	if r.streamer.Position() >= r.streamer.Len() {
		err = r.streamer.Seek(0)
	}
	ctrl := r.ctrl
	needsPlay := false
	if err == nil {
		ctrl.Paused = false
		needsPlay = !r.queued
		r.queued = true
	}

	r.mutex.Unlock()
	speaker.Unlock()

	if err != nil {
		return err
	}
	if needsPlay {
		speaker.Play(beep.Seq(ctrl, beep.Callback(r.finished)))
	}
	return nil
}

// finished runs on the speaker goroutine, with the speaker locked, when the
// stream runs out or fails.
func (r *resource) finished() {
	r.mutex.Lock()
	r.queued = false
	var err error
	if r.streamer != nil {
		err = r.streamer.Err()
	}
	r.mutex.Unlock()

	select {
	case r.ended <- err:
	default:
	}
}

func (r *resource) Pause() {
	speaker.Lock()
	defer speaker.Unlock()
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ctrl != nil {
		r.ctrl.Paused = true
	}
}

func (r *resource) Rewind() error {
	speaker.Lock()
	defer speaker.Unlock()
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.streamer == nil {
		return nil
	}
	return r.streamer.Seek(0)
}

func (r *resource) Close() error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return ErrClosed
	}
	r.closed = true
	ctrl, streamer, file := r.ctrl, r.streamer, r.file
	r.ctrl, r.streamer, r.file = nil, nil, nil
	r.mutex.Unlock()

	if ctrl == nil {
		// not loaded yet; load() closes the file when it sees r.closed
		return nil
	}

	speaker.Lock()
	ctrl.Streamer = nil
	speaker.Unlock()

	return closeAll(streamer, file)
}

// closeAll closes the decoder and its file. Decoders may close the file
// themselves, so a second close of the file is not an error.
func closeAll(streamer io.Closer, file *os.File) error {
	err := streamer.Close()
	if fileErr := file.Close(); fileErr != nil && !errors.Is(fileErr, os.ErrClosed) && err == nil {
		err = fileErr
	}
	return err
}
