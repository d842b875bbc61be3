// Package session manages the lifecycle of the single connection to the
// messaging server: it tracks connection state, classifies closures and
// drives the resources that depend on an authenticated session.
package session

// State represents the current state of the messaging connection.
type State string

const (
	// StateDisconnected indicates no connection to the server.
	StateDisconnected State = "disconnected"
	// StateConnecting indicates the transport is being established.
	StateConnecting State = "connecting"
	// StateConnected indicates the transport is up but not yet authenticated.
	StateConnected State = "connected"
	// StateAuthenticated indicates the account is signed in.
	StateAuthenticated State = "authenticated"
	// StateClosedOnError indicates the connection was closed by a failure.
	StateClosedOnError State = "closed_on_error"
)

// IsAuthenticated returns true if the state represents a signed-in session.
func (s State) IsAuthenticated() bool {
	return s == StateAuthenticated
}

// IsTransitioning returns true if the state represents an in-progress connection attempt.
func (s State) IsTransitioning() bool {
	return s == StateConnecting || s == StateConnected
}

// IsClosed returns true if no transport is open.
func (s State) IsClosed() bool {
	return s == StateDisconnected || s == StateClosedOnError
}

// validTransitions defines the transitions the server is expected to drive.
// Anything else is still applied, but logged as unexpected.
var validTransitions = map[State][]State{
	StateDisconnected: {
		StateDisconnected, // repeated close
		StateConnecting,
		StateConnected,
		StateClosedOnError, // failure reported after a graceful close
	},
	StateConnecting: {
		StateConnecting,
		StateConnected,
		StateDisconnected,
		StateClosedOnError,
	},
	StateConnected: {
		StateAuthenticated,
		StateDisconnected,
		StateClosedOnError,
	},
	StateAuthenticated: {
		StateAuthenticated, // resumed stream
		StateDisconnected,
		StateClosedOnError,
	},
	StateClosedOnError: {
		StateClosedOnError, // repeated close
		StateConnecting,
		StateConnected,
		StateDisconnected,
	},
}

// IsValidTransition checks if moving from one state to another is expected.
func IsValidTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns all possible connection states.
func AllStates() []State {
	return []State{
		StateDisconnected,
		StateConnecting,
		StateConnected,
		StateAuthenticated,
		StateClosedOnError,
	}
}
