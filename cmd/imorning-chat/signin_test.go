package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imorning/chat/internal/login"
	"github.com/imorning/chat/internal/session"
)

// fakeConn accepts token "tok1".
type fakeConn struct {
	mu            sync.Mutex
	connected     bool
	authenticated bool
	account       string
}

func (c *fakeConn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeConn) Login(_ context.Context, accountID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != "tok1" {
		return session.ErrAuthenticationRejected
	}
	c.authenticated = true
	c.account = accountID
	return nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *fakeConn) OnLifecycle(func(session.Event)) {}

type notice struct{ title, body string }

type noticeRecorder chan notice

func (r noticeRecorder) Notice(title, body string) { r <- notice{title, body} }

func TestSignInRouter_TerminalPromptSignsIn(t *testing.T) {
	conn := &fakeConn{}
	lc := login.NewController(conn, login.Options{})
	notices := make(noticeRecorder, 1)

	signedIn := make(chan error, 1)
	router := &signInRouter{
		interactive: true,
		prompt: func(ctx context.Context, lc *login.Controller) {
			_, err := lc.SignIn(ctx, "alice@example.org", "tok1")
			signedIn <- err
		},
		notifier: notices,
	}

	router.route(context.Background(), lc, session.ErrForcedRemoteClose)

	select {
	case err := <-signedIn:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not sign in")
	}
	assert.True(t, conn.IsAuthenticated())
	assert.Equal(t, "alice@example.org", conn.account)
	assert.True(t, lc.Status().NavigateForward)
	assert.Empty(t, notices)
}

func TestSignInRouter_WithoutTerminalPointsToControlSocket(t *testing.T) {
	tests := []struct {
		name    string
		account string
		want    string
	}{
		{"known account", "alice@example.org", "Run imorning-chat-reply --login alice@example.org to sign in."},
		{"no account", "", "Run imorning-chat-reply --login <account> to sign in."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := login.NewController(&fakeConn{}, login.Options{})
			lc.SetAccount(tt.account)
			notices := make(noticeRecorder, 1)

			router := &signInRouter{
				prompt: func(context.Context, *login.Controller) {
					t.Error("prompt shown without a terminal")
				},
				notifier: notices,
			}
			router.route(context.Background(), lc, login.ErrNoSession)

			select {
			case n := <-notices:
				assert.Equal(t, notice{"Sign-in required", tt.want}, n)
			case <-time.After(time.Second):
				t.Fatal("no notice")
			}
		})
	}
}
