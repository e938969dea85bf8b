package beepaudio_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beakbeak/soundboard/pkg/beepaudio"
	"github.com/beakbeak/soundboard/pkg/playback"
)

func waitReady(t *testing.T, res playback.Resource) error {
	t.Helper()
	select {
	case err := <-res.Ready():
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Ready was never signaled")
		return nil
	}
}

func TestCanDecode(t *testing.T) {
	assert.True(t, beepaudio.CanDecode("/audio/a.MP3"))
	assert.True(t, beepaudio.CanDecode("a.wav"))
	assert.True(t, beepaudio.CanDecode("a.flac"))
	assert.False(t, beepaudio.CanDecode("a.aiff"))
	assert.False(t, beepaudio.CanDecode("a.m4a"))
}

func TestOpen_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chime.m4a")
	require.NoError(t, os.WriteFile(path, []byte("...."), 0o644))

	res, err := beepaudio.NewOpener(beepaudio.NewOpenerConfig()).Open(path, 1)
	require.NoError(t, err)
	defer res.Close()

	assert.ErrorIs(t, waitReady(t, res), beepaudio.ErrUnsupportedFormat)
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mp3")

	res, err := beepaudio.NewOpener(beepaudio.NewOpenerConfig()).Open(path, 1)
	require.NoError(t, err)
	defer res.Close()

	assert.ErrorIs(t, waitReady(t, res), os.ErrNotExist)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF"), 0o644))

	res, err := beepaudio.NewOpener(beepaudio.NewOpenerConfig()).Open(path, 0.5)
	require.NoError(t, err)
	defer res.Close()

	err = waitReady(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.wav")
}

func TestOpen_ResolveFailure(t *testing.T) {
	config := beepaudio.NewOpenerConfig()
	config.Resolve = func(string) (string, error) {
		return "", errors.New("not in library")
	}

	_, err := beepaudio.NewOpener(config).Open("/audio/x.mp3", 1)
	assert.EqualError(t, err, "not in library")
}

func TestResource_UnloadedOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.flac")

	res, err := beepaudio.NewOpener(beepaudio.NewOpenerConfig()).Open(path, 1)
	require.NoError(t, err)
	require.Error(t, waitReady(t, res))

	assert.ErrorIs(t, <-res.Start(), beepaudio.ErrNotLoaded)
	res.Pause()
	assert.NoError(t, res.Rewind())

	assert.NoError(t, res.Close())
	assert.ErrorIs(t, res.Close(), beepaudio.ErrClosed)
	assert.ErrorIs(t, <-res.Start(), beepaudio.ErrClosed)
}
