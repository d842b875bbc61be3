package protocol

import (
	"errors"
	"fmt"
)

// Error codes for protocol responses.
const (
	// ErrCodeInvalidRequest indicates the request was malformed.
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	// ErrCodeInvalidCommand indicates an unknown command was sent.
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	// ErrCodeInvalidParams indicates the command parameters were invalid.
	ErrCodeInvalidParams = "INVALID_PARAMS"
	// ErrCodeInvalidState indicates the operation is not allowed in the current state.
	ErrCodeInvalidState = "INVALID_STATE"
	// ErrCodeNotAuthorized indicates the server rejected the credentials.
	ErrCodeNotAuthorized = "NOT_AUTHORIZED"
	// ErrCodeLoginFailed indicates signing in failed for another reason.
	ErrCodeLoginFailed = "LOGIN_FAILED"
	// ErrCodeMessageTooLarge indicates a message exceeded MaxMessageSize.
	ErrCodeMessageTooLarge = "MESSAGE_TOO_LARGE"
	// ErrCodeInternalError indicates an unexpected internal error.
	ErrCodeInternalError = "INTERNAL_ERROR"
)

var (
	// ErrMessageTooLarge is returned when a line exceeds the size limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrPeerClosed is returned for calls on a closed peer.
	ErrPeerClosed = errors.New("peer closed")
)

// RemoteError is an error reported by the other side in a response.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Err returns the response's error, or nil if it succeeded.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return &RemoteError{Code: ErrCodeInternalError, Message: "request failed with unknown error"}
	}
	return &RemoteError{Code: r.Error.Code, Message: r.Error.Message}
}

// IsCode returns true if err is a RemoteError with the given code.
func IsCode(err error, code string) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == code
}
