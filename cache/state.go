package cache

// State is the lifecycle state of a Cache.
//
// Transitions are linear: Latent -> Starting -> Started -> Stopped.
// Stop is reachable from any non-terminal state. There is no edge out of
// Stopped; a stopped cache cannot be restarted.
type State int32

const (
	StateLatent State = iota
	StateStarting
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLatent:
		return "latent"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
