// Package login drives the connection to an authenticated session, either
// interactively from user-entered credentials or silently from the stored
// session during reconnection.
package login

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/imorning/chat/internal/credentials"
	"github.com/imorning/chat/internal/metrics"
	"github.com/imorning/chat/internal/session"
)

// User-facing status messages.
const (
	MsgValidation         = "Account and token are required."
	MsgNetworkUnavailable = "Network unavailable. Check your connection and try again."
	MsgRejected           = "Invalid account or token."
	MsgAlreadySignedIn    = "Already signed in."
)

// Reachability reports whether the server can be reached before a login attempt.
type Reachability interface {
	Reachable(ctx context.Context) bool
}

// Status is the observable state of the login form.
type Status struct {
	AccountID       string
	Token           string
	Persist         bool
	Waiting         bool
	HasError        bool
	ErrorMessage    string
	InfoMessage     string
	NavigateForward bool
}

// Options configures a Controller.
type Options struct {
	// Store persists the session after a successful login. Optional.
	Store credentials.Store
	// Reachability is checked before connecting. When nil the network is assumed up.
	Reachability Reachability
	// Dispatch schedules status mutations on the UI context (e.g. glib.IdleAdd).
	// When nil, mutations are applied on the calling goroutine.
	Dispatch func(func())
}

// Controller validates credentials and drives the connection to an
// authenticated session. It never touches the connection state owned by
// session.Controller; it only reads IsConnected and IsAuthenticated.
type Controller struct {
	conn session.Conn
	opts Options

	group singleflight.Group

	mu       sync.RWMutex
	status   Status
	onStatus func(Status)
}

// NewController creates a login controller. Persistence starts enabled and
// the form is preloaded when the store holds a complete session.
func NewController(conn session.Conn, opts Options) *Controller {
	c := &Controller{conn: conn, opts: opts, status: Status{Persist: true}}

	if opts.Store != nil {
		sess, err := credentials.Load(opts.Store)
		switch {
		case err == nil:
			c.status.AccountID = sess.AccountID
			c.status.Token = sess.AuthToken
			slog.Debug("Preloaded stored session", "account", sess.AccountID)
		case errors.Is(err, credentials.ErrNotFound):
		default:
			slog.Warn("Failed to load stored session", "error", err)
		}
	}

	return c
}

// Status returns a snapshot of the current status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// OnStatus registers a callback invoked with every status change.
// The callback runs on the dispatch context, outside the lock.
func (c *Controller) OnStatus(callback func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = callback
}

// SetAccount updates the account identifier and clears the token.
func (c *Controller) SetAccount(accountID string) {
	c.mutate(func(s *Status) {
		s.AccountID = accountID
		s.Token = ""
	})
}

// SetToken updates the authentication token.
func (c *Controller) SetToken(token string) {
	c.mutate(func(s *Status) { s.Token = token })
}

// SetPersist toggles saving the session after a successful login.
func (c *Controller) SetPersist(persist bool) {
	c.mutate(func(s *Status) { s.Persist = persist })
}

// DismissError clears the error and the waiting indicator.
func (c *Controller) DismissError() {
	c.mutate(func(s *Status) {
		s.HasError = false
		s.ErrorMessage = ""
		s.Waiting = false
	})
}

// LoginAsync runs Login on a new goroutine.
func (c *Controller) LoginAsync(ctx context.Context) {
	go func() {
		_ = c.Login(ctx)
	}()
}

// Login validates the current credentials and signs in. The result is
// reported through Status; the returned error mirrors it for callers
// that run headless. Concurrent calls with the same credentials share one
// attempt.
func (c *Controller) Login(ctx context.Context) error {
	snapshot := c.Status()
	_, err := c.signIn(ctx, snapshot.AccountID, snapshot.Token, snapshot.Persist)
	return err
}

// SignIn replaces the form credentials and signs in with them. It returns
// the info message shown on success.
func (c *Controller) SignIn(ctx context.Context, accountID, token string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	persist := c.Status().Persist
	c.update(func(s *Status) {
		s.AccountID = accountID
		s.Token = token
	})
	return c.signIn(ctx, accountID, token, persist)
}

func (c *Controller) signIn(ctx context.Context, accountID, token string, persist bool) (string, error) {
	account := strings.TrimSpace(accountID)
	token = strings.TrimSpace(token)

	c.update(func(s *Status) {
		s.Waiting = true
		s.HasError = false
		s.ErrorMessage = ""
		s.InfoMessage = ""
	})

	if account == "" || token == "" {
		c.fail(session.ErrValidation, MsgValidation)
		return "", session.ErrValidation
	}

	key := account + "\x00" + token
	info, err, shared := c.group.Do(key, func() (any, error) {
		return c.login(ctx, account, token, persist)
	})
	if shared {
		slog.Debug("Joined in-flight login attempt", "account", account)
	}
	if err != nil {
		return "", err
	}
	return info.(string), nil
}

func (c *Controller) login(ctx context.Context, account, token string, persist bool) (string, error) {
	if c.opts.Reachability != nil && !c.opts.Reachability.Reachable(ctx) {
		c.fail(session.ErrNetworkUnavailable, MsgNetworkUnavailable)
		return "", session.ErrNetworkUnavailable
	}

	slog.Info("Signing in", "account", account)
	err := session.Establish(ctx, c.conn, account, token)
	switch {
	case err == nil:
		if persist {
			c.persist(account, token)
		}
		metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
		slog.Info("Signed in", "account", account)
		c.succeed("")
		return "", nil

	case errors.Is(err, session.ErrAlreadyAuthenticated):
		// The stored session is not reconciled with the supplied token.
		metrics.LoginAttemptsTotal.WithLabelValues("already_authenticated").Inc()
		slog.Info("Account already signed in", "account", account)
		c.succeed(MsgAlreadySignedIn)
		return MsgAlreadySignedIn, nil

	default:
		c.fail(err, Message(err))
	}
	return "", err
}

// Message returns the status text shown for a failed login.
func Message(err error) string {
	switch {
	case errors.Is(err, session.ErrValidation):
		return MsgValidation
	case errors.Is(err, session.ErrNetworkUnavailable):
		return MsgNetworkUnavailable
	case errors.Is(err, session.ErrAuthenticationRejected):
		return MsgRejected
	default:
		return capitalize(err.Error())
	}
}

func (c *Controller) persist(account, token string) {
	if c.opts.Store == nil {
		return
	}
	if err := credentials.Save(c.opts.Store, credentials.Session{AccountID: account, AuthToken: token, Persist: true}); err != nil {
		slog.Warn("Failed to save session", "error", err)
	}
}

func (c *Controller) succeed(info string) {
	c.update(func(s *Status) {
		s.Waiting = false
		s.HasError = false
		s.ErrorMessage = ""
		s.InfoMessage = info
		s.NavigateForward = true
	})
}

func (c *Controller) fail(err error, message string) {
	result := "error"
	switch {
	case errors.Is(err, session.ErrValidation):
		result = "validation"
	case errors.Is(err, session.ErrNetworkUnavailable):
		result = "network_unavailable"
	case errors.Is(err, session.ErrAuthenticationRejected):
		result = "rejected"
	case errors.Is(err, session.ErrConnectionEstablishment):
		result = "connect_failed"
	}
	metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	slog.Warn("Login failed", "result", result, "error", err)

	c.update(func(s *Status) {
		s.Waiting = false
		s.HasError = true
		s.ErrorMessage = message
	})
}

// update applies fn on the dispatch context.
func (c *Controller) update(fn func(*Status)) {
	if c.opts.Dispatch != nil {
		c.opts.Dispatch(func() { c.mutate(fn) })
		return
	}
	c.mutate(fn)
}

// mutate applies fn on the current goroutine and notifies the observer.
func (c *Controller) mutate(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	snapshot := c.status
	callback := c.onStatus
	c.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
