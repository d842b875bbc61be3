package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imorning/chat/internal/credentials"
	"github.com/imorning/chat/internal/session"
)

// ErrNoSession is returned by Reconnector.Run when nothing is stored to sign in with.
var ErrNoSession = errors.New("no stored session")

// Reconnector signs in again with the stored session.
// It is the action run by the reconnection scheduler.
type Reconnector struct {
	conn  session.Conn
	store credentials.Store
}

// NewReconnector creates a reconnector for conn using the sessions in store.
func NewReconnector(conn session.Conn, store credentials.Store) *Reconnector {
	return &Reconnector{conn: conn, store: store}
}

// Run connects and authenticates with the stored session. It is a no-op when
// the connection is already authenticated.
func (r *Reconnector) Run(ctx context.Context) error {
	if r.conn.IsAuthenticated() {
		slog.Debug("Skipping reconnect: already authenticated")
		return nil
	}

	if r.store == nil {
		return ErrNoSession
	}
	sess, err := credentials.Load(r.store)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return ErrNoSession
		}
		return fmt.Errorf("load stored session: %w", err)
	}

	err = session.Establish(ctx, r.conn, sess.AccountID, sess.AuthToken)
	if err != nil && !errors.Is(err, session.ErrAlreadyAuthenticated) {
		return err
	}

	slog.Info("Reconnected", "account", sess.AccountID)
	return nil
}
