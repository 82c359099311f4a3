package watch

// State is the lifecycle state of a watch session.
type State int32

const (
	// StateIdle waits for changes.
	StateIdle State = iota
	// StateBuilding runs a rebuild.
	StateBuilding
	// StateTerminated is final: the watched path went away and no further
	// rebuilds happen.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
