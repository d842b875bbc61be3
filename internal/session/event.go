package session

// EventKind identifies a lifecycle notification raised by the connection.
type EventKind string

const (
	// EventConnecting is raised when the transport starts connecting.
	EventConnecting EventKind = "connecting"
	// EventConnected is raised when the transport is established.
	EventConnected EventKind = "connected"
	// EventAuthenticated is raised when the account is signed in.
	EventAuthenticated EventKind = "authenticated"
	// EventClosed is raised on a graceful, intentional close.
	EventClosed EventKind = "closed"
	// EventClosedOnError is raised when the connection closes because of a failure.
	EventClosedOnError EventKind = "closed_on_error"
)

// Event is a single lifecycle notification.
type Event struct {
	Kind EventKind
	// Resumed is set for EventAuthenticated when a previous stream was resumed.
	Resumed bool
	// Err is the closure cause for EventClosedOnError.
	Err error
}

// Connecting returns a connecting event.
func Connecting() Event { return Event{Kind: EventConnecting} }

// Connected returns a connected event.
func Connected() Event { return Event{Kind: EventConnected} }

// Authenticated returns an authenticated event.
func Authenticated(resumed bool) Event {
	return Event{Kind: EventAuthenticated, Resumed: resumed}
}

// Closed returns a graceful close event.
func Closed() Event { return Event{Kind: EventClosed} }

// ClosedOnError returns a close event carrying its cause.
func ClosedOnError(err error) Event {
	return Event{Kind: EventClosedOnError, Err: err}
}

// ReconnectRequest is a one-shot reconnection work item handed to a Scheduler.
type ReconnectRequest struct {
	RequiresNetwork bool
	RequiresPower   bool
}

// DefaultReconnectRequest returns the request used after a recoverable failure.
// Both constraints are set so retries wait for connectivity and external power.
func DefaultReconnectRequest() ReconnectRequest {
	return ReconnectRequest{RequiresNetwork: true, RequiresPower: true}
}

// EffectKind identifies a side effect produced by a state transition.
type EffectKind string

const (
	// EffectStartReceiver starts the background message receiver.
	EffectStartReceiver EffectKind = "start_receiver"
	// EffectStopReceiver stops the background message receiver.
	EffectStopReceiver EffectKind = "stop_receiver"
	// EffectRefreshProfile reloads the account profile from the server.
	EffectRefreshProfile EffectKind = "refresh_profile"
	// EffectScheduleReconnect enqueues a reconnection request.
	EffectScheduleReconnect EffectKind = "schedule_reconnect"
	// EffectRequireLogin asks the user-facing layer to restart the login flow.
	EffectRequireLogin EffectKind = "require_login"
	// EffectNotice shows a user-visible notice.
	EffectNotice EffectKind = "notice"
)

// Effect is a side effect the runtime executes after a transition.
type Effect struct {
	Kind EffectKind
	// Request is set for EffectScheduleReconnect.
	Request ReconnectRequest
	// Failure is the closure classification behind a reconnect or re-login.
	Failure Failure
	// Cause is the closure error behind a reconnect or re-login.
	Cause error
	// Title and Body are set for EffectNotice.
	Title string
	Body  string
}
