// Package session implements the board connection engine: the connection
// state machine, the multi-strategy unlock orchestrator, characteristic
// subscription management, and the heartbeat/watchdog liveness machinery.
package session

import "time"

// State is the engine's connection state. Exactly one value is active;
// transitions within a single attempt are monotonic, and every terminal
// failure resets to Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateError
)

var stateNames = map[State]string{
	StateDisconnected:   "disconnected",
	StateScanning:       "scanning",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateAuthenticating: "authenticating",
	StateAuthenticated:  "authenticated",
	StateError:          "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// StateChange is published on every transition.
type StateChange struct {
	From State
	To   State
	At   time.Time
	// Err carries the failure that forced an Error transition, nil
	// otherwise.
	Err error
}
