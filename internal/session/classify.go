package session

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Failure classifies why a connection was closed on error.
type Failure string

const (
	// FailureNetwork indicates the transport was lost.
	FailureNetwork Failure = "network_error"
	// FailureForcedRemoteClose indicates the server terminated the session,
	// e.g. because the account signed in elsewhere.
	FailureForcedRemoteClose Failure = "forced_remote_close"
	// FailureOther covers every other closure cause.
	FailureOther Failure = "other"
)

// Recoverable returns true if the failure is eligible for scheduled reconnection.
func (f Failure) Recoverable() bool {
	return f != FailureForcedRemoteClose
}

// Classify maps a closure error reported by the connection to a Failure.
func Classify(err error) Failure {
	if err == nil {
		return FailureOther
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) || errors.Is(err, ErrForcedRemoteClose) {
		return FailureForcedRemoteClose
	}

	if errors.Is(err, ErrTransientConnectionLoss) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}

	return FailureOther
}
