package engine

import "time"

// State is the lifecycle phase of the coordinator.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canTransition lists the legal edges: idle and ready may start a build, a
// build may restart itself or finish.
func canTransition(from, to State) bool {
	switch to {
	case StateBuilding:
		return true
	case StateReady:
		return from == StateBuilding
	default:
		return false
	}
}

// Status is a point-in-time copy of the coordinator's bookkeeping, safe to
// read from any goroutine.
type Status struct {
	State        State     `json:"state"`
	BuildToken   uint64    `json:"buildToken"`
	Loaded       int       `json:"loaded"`
	TotalVideos  int       `json:"totalVideos"`
	TotalQuotes  int       `json:"totalQuotes"`
	CacheKey     string    `json:"cacheKey,omitempty"`
	Cached       bool      `json:"cached"`
	FailedVideos []string  `json:"failedVideos,omitempty"`
	ReadyAt      time.Time `json:"readyAt,omitzero"`
}
