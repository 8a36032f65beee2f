package workflow

// State is the step an import run is currently in.
type State int

const (
	Idle State = iota
	Starting
	Discovering
	Skipped
	Filtering
	Downloading
	Transferring
	CleaningUp
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Discovering:
		return "discovering"
	case Skipped:
		return "skipped"
	case Filtering:
		return "filtering"
	case Downloading:
		return "downloading"
	case Transferring:
		return "transferring"
	case CleaningUp:
		return "cleaning_up"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
