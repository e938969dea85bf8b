package playback

// A Resource is a loaded, playable audio stream. A Controller owns at most one
// Resource at a time and closes every Resource it opens exactly once.
//
// Channels returned by a Resource must be buffered or otherwise written
// without blocking: the Controller stops reading them as soon as the
// Resource is replaced.
type Resource interface {
	// Ready returns a channel that receives exactly one value once loading
	// finishes: nil if the stream can play through, or the load error.
	Ready() <-chan error

	// Start begins or resumes playback. Playback of a stream that already
	// reached its end restarts from the beginning. The returned channel
	// receives exactly one value with the outcome.
	Start() <-chan error

	// Pause halts playback, keeping the position.
	Pause()

	// Rewind moves the position to the start of the stream.
	Rewind() error

	// Ended returns a channel that receives a value each time playback stops
	// on its own: nil when the end of the stream is reached, or the error
	// that interrupted playback.
	Ended() <-chan error

	// Close halts playback and frees the stream.
	Close() error
}

// An Opener acquires a Resource for the audio file at path, with its output
// scaled to level (0 to 1).
type Opener interface {
	Open(path string, level float64) (Resource, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string, level float64) (Resource, error)

// Open calls f(path, level).
func (f OpenerFunc) Open(path string, level float64) (Resource, error) {
	return f(path, level)
}
