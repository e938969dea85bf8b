package beepaudio

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	mutex    sync.Mutex
	position int
	length   int
	err      error
	closed   bool
}

func (s *fakeStreamer) Stream(samples [][2]float64) (int, bool) { return 0, false }

func (s *fakeStreamer) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

func (s *fakeStreamer) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.length
}

func (s *fakeStreamer) Position() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.position
}

func (s *fakeStreamer) Seek(p int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return errors.New("seek on closed decoder")
	}
	s.position = p
	return nil
}

func (s *fakeStreamer) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// loadedResource returns a resource in the state load leaves it in. It is
// marked queued so start never hands it to the sound device.
func loadedResource(t *testing.T, streamer *fakeStreamer) *resource {
	t.Helper()
	file, err := os.Create(filepath.Join(t.TempDir(), "loaded.wav"))
	require.NoError(t, err)

	return &resource{
		config:   NewOpenerConfig(),
		fsPath:   file.Name(),
		level:    1,
		ready:    make(chan error, 1),
		ended:    make(chan error, 1),
		queued:   true,
		file:     file,
		streamer: streamer,
		ctrl:     &beep.Ctrl{Streamer: streamer, Paused: true},
	}
}

func TestFinished_EndOfStream(t *testing.T) {
	r := loadedResource(t, &fakeStreamer{length: 10, position: 10})

	r.finished()
	assert.NoError(t, <-r.ended)
	assert.False(t, r.queued)
}

func TestFinished_ReportsStreamError(t *testing.T) {
	r := loadedResource(t, &fakeStreamer{length: 10, err: errors.New("mp3: unexpected EOF")})

	r.finished()
	assert.EqualError(t, <-r.ended, "mp3: unexpected EOF")
}

func TestStart_RestartsFinishedStream(t *testing.T) {
	streamer := &fakeStreamer{length: 10, position: 10}
	r := loadedResource(t, streamer)

	require.NoError(t, r.start())
	assert.Equal(t, 0, streamer.Position())
	assert.False(t, r.ctrl.Paused)

	r.Pause()
	assert.True(t, r.ctrl.Paused)
}

func TestStart_AfterClose(t *testing.T) {
	streamer := &fakeStreamer{length: 10, position: 10}
	r := loadedResource(t, streamer)

	require.NoError(t, r.Close())
	assert.True(t, streamer.closed)

	assert.ErrorIs(t, r.start(), ErrClosed)
	assert.NoError(t, r.Rewind(), "rewinding a closed resource is a no-op")
	assert.Equal(t, 10, streamer.Position(), "closed decoder must not be seeked")
}

func TestStart_ConcurrentClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		streamer := &fakeStreamer{length: 10, position: 10}
		r := loadedResource(t, streamer)

		var wg sync.WaitGroup
		var startErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			startErr = r.start()
		}()
		require.NoError(t, r.Close())
		wg.Wait()

		if startErr != nil {
			require.ErrorIs(t, startErr, ErrClosed)
			require.Equal(t, 10, streamer.Position())
		} else {
			require.Equal(t, 0, streamer.Position())
		}
	}
}
