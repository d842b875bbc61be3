package session

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when the account or token is blank.
	ErrValidation = errors.New("account and token are required")
	// ErrNetworkUnavailable is returned when the pre-flight reachability check fails.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrConnectionEstablishment wraps transport failures while opening the connection.
	ErrConnectionEstablishment = errors.New("failed to connect to server")
	// ErrAuthenticationRejected is returned when the server rejects the credentials.
	ErrAuthenticationRejected = errors.New("invalid account or token")
	// ErrAlreadyAuthenticated is returned when the identity is already signed in.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrForcedRemoteClose indicates the server invalidated the session.
	ErrForcedRemoteClose = errors.New("session closed by server")
	// ErrTransientConnectionLoss indicates the connection dropped for a recoverable reason.
	ErrTransientConnectionLoss = errors.New("connection lost")
	// ErrLoginFailed wraps any other authentication failure.
	ErrLoginFailed = errors.New("login failed")
)

// Stream error conditions that mean the server ended the session on purpose.
const (
	// ConditionConflict is sent when the same account signs in elsewhere.
	ConditionConflict = "conflict"
	// ConditionNotAuthorized is sent when the session credentials were revoked.
	ConditionNotAuthorized = "not-authorized"
	// ConditionPolicyViolation is sent when the server rejects the stream.
	ConditionPolicyViolation = "policy-violation"
)

// StreamError is reported by a Conn when the server terminates the stream
// with an explicit error condition.
type StreamError struct {
	Condition string
	Text      string
}

func (e *StreamError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("stream error: %s", e.Condition)
	}
	return fmt.Sprintf("stream error: %s: %s", e.Condition, e.Text)
}

// Is reports stream errors as forced remote closes.
func (e *StreamError) Is(target error) bool {
	return target == ErrForcedRemoteClose
}
