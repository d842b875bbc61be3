package session

import (
	"context"

	"github.com/imorning/chat/internal/profile"
)

// Conn is the underlying protocol connection.
// Implementations must deliver lifecycle events in the order the transport
// raises them and must convert their own errors into this package's sentinels
// (ErrAuthenticationRejected, ErrAlreadyAuthenticated, *StreamError).
type Conn interface {
	// Connect opens the transport.
	Connect(ctx context.Context) error

	// Login authenticates the account over an open transport.
	Login(ctx context.Context, accountID, token string) error

	// IsConnected returns true if the transport is open.
	IsConnected() bool

	// IsAuthenticated returns true if the account is signed in.
	IsAuthenticated() bool

	// OnLifecycle registers the callback that receives lifecycle events.
	// Events are delivered from the connection's I/O goroutine.
	OnLifecycle(callback func(Event))
}

// ProfileFetcher is implemented by connections that can load the account profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*profile.Profile, error)
}

// Receiver is the background process that receives messages while authenticated.
// Start must tolerate repeated calls and Stop must tolerate being called
// when not started.
type Receiver interface {
	Start() error
	Stop() error
}

// ReceiverFactory creates a receiver each time a session is authenticated.
type ReceiverFactory func() Receiver

// Scheduler accepts reconnection requests. ScheduleOnce must not block.
type Scheduler interface {
	ScheduleOnce(req ReconnectRequest)
}

// Notifier shows user-visible notices.
type Notifier interface {
	Notice(title, body string)
}
