package session

// State is the recognition session lifecycle position.
type State int32

const (
	Idle State = iota
	Starting
	Recording
	Stopping
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Running reports whether capture is live or about to be.
func (s State) Running() bool {
	return s == Starting || s == Recording
}

const (
	GuideSpeak = "please speak; press the button when finished."
	GuideStart = "press the button to start"
)
