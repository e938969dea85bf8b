package playback

// Status is the observable playback status of a Controller.
type Status string

const (
	// StatusIdle means nothing is playing and no play attempt is in flight.
	StatusIdle Status = "Idle"

	// StatusLoading means a play attempt is waiting for the resource to become
	// ready or for playback to start.
	StatusLoading Status = "Loading"

	// StatusPlaying means the resource is audible (or would be, if muted).
	StatusPlaying Status = "Playing"

	// StatusError means the last play attempt failed. Only Play leaves it.
	StatusError Status = "Error"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsActive returns true while a play attempt is loading or playing.
func (s Status) IsActive() bool {
	return s == StatusLoading || s == StatusPlaying
}

// State is a snapshot of a Controller. Playing and Loading are derived from
// Status, so they are never both true.
type State struct {
	Status  Status  `json:"status"`
	Volume  float64 `json:"volume"`
	Muted   bool    `json:"muted"`
	Playing bool    `json:"playing"`
	Loading bool    `json:"loading"`
	Error   string  `json:"error,omitempty"`
}

// Level returns the effective output level: zero when muted, otherwise the
// stored volume.
func (s State) Level() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}
