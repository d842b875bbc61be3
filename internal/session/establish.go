package session

import (
	"context"
	"errors"
	"fmt"
)

// Establish opens the connection if needed and authenticates the account.
// It returns nil after a fresh authentication and an error matching
// ErrAlreadyAuthenticated when the identity was already signed in, which
// callers should treat as success. Other failures match
// ErrConnectionEstablishment, ErrAuthenticationRejected or ErrLoginFailed.
func Establish(ctx context.Context, conn Conn, accountID, token string) error {
	if !conn.IsConnected() {
		if err := conn.Connect(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionEstablishment, err)
		}
	}

	if conn.IsAuthenticated() {
		return ErrAlreadyAuthenticated
	}

	if err := conn.Login(ctx, accountID, token); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyAuthenticated), errors.Is(err, ErrAuthenticationRejected):
			return err
		default:
			return fmt.Errorf("%w: %w", ErrLoginFailed, err)
		}
	}

	return nil
}
