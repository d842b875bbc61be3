// Package gateway is the XMPP connection to the messaging server. It drives
// a Link and converts stream outcomes into the session error taxonomy at
// this boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imorning/chat/internal/profile"
	"github.com/imorning/chat/internal/session"
)

const (
	// DefaultTimeout bounds calls made without a caller deadline.
	DefaultTimeout = 30 * time.Second
	// DefaultResource names this client instance on the server.
	DefaultResource = "imorning-chat"
)

var (
	// ErrNotConnected is returned for operations that need an open stream.
	ErrNotConnected = errors.New("not connected")
	// ErrQueryFailed is returned when the server answers an IQ with an error.
	ErrQueryFailed = errors.New("query failed")
)

// Message is an incoming chat message.
type Message struct {
	ID     string
	From   string
	Body   string
	SentAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the XMPP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithResource sets the resource bound for this client instance.
func WithResource(resource string) Option {
	return func(c *Client) { c.resource = resource }
}

// Client implements session.Conn over an XMPP stream.
// It is safe for concurrent use.
type Client struct {
	addr     string
	resource string
	dial     Dialer

	mu            sync.RWMutex
	link          Link
	authenticated bool
	closing       bool
	accountID     string
	pending       map[string]chan Inbound
	onLifecycle   func(session.Event)
	onMessage     func(Message)
}

var (
	_ session.Conn           = (*Client)(nil)
	_ session.ProfileFetcher = (*Client)(nil)
)

// NewClient creates a client for the server at addr (host:port).
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:     addr,
		resource: DefaultResource,
		dial:     DialXMPP,
		pending:  make(map[string]chan Inbound),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// OnLifecycle registers the callback that receives lifecycle events.
func (c *Client) OnLifecycle(callback func(session.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLifecycle = callback
}

// OnMessage registers the callback that receives incoming messages.
// It is called from the stream goroutine and must not block.
func (c *Client) OnMessage(callback func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = callback
}

// IsConnected returns true if the stream is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link != nil
}

// IsAuthenticated returns true if the account is signed in.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link != nil && c.authenticated
}

// AccountID returns the signed-in account, or "" when not authenticated.
func (c *Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return ""
	}
	return c.accountID
}

// Connect opens the stream. It is a no-op if already connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	c.emit(session.Connecting())

	link, err := c.dial(ctx, c.addr)
	if err != nil {
		slog.Warn("Failed to connect to server", "addr", c.addr, "error", err)
		c.emit(session.Closed())
		return err
	}

	c.mu.Lock()
	if c.link != nil {
		// Lost a race with a concurrent Connect
		c.mu.Unlock()
		_ = link.Close()
		return nil
	}
	c.link = link
	c.authenticated = false
	c.closing = false
	c.mu.Unlock()

	slog.Info("Connected to server", "addr", c.addr)
	c.emit(session.Connected())
	return nil
}

// Login authenticates the account on the open stream.
func (c *Client) Login(ctx context.Context, accountID, token string) error {
	c.mu.RLock()
	link, authenticated := c.link, c.authenticated
	c.mu.RUnlock()

	if link == nil {
		return ErrNotConnected
	}
	if authenticated {
		return session.ErrAlreadyAuthenticated
	}

	if err := link.Authenticate(ctx, accountID, token, c.resource, c.deliver); err != nil {
		return err
	}

	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.authenticated = true
	c.accountID = accountID
	c.mu.Unlock()

	c.emit(session.Authenticated(false))
	go c.watch(link)
	return nil
}

// Disconnect closes the stream gracefully.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	link := c.link
	if link == nil {
		c.mu.Unlock()
		return nil
	}
	watched := c.authenticated
	c.closing = true
	if !watched {
		// Nothing serves the stream yet, so report the close here
		c.link = nil
		c.closing = false
	}
	c.mu.Unlock()

	err := link.Close()
	if !watched {
		slog.Info("Disconnected from server")
		c.emit(session.Closed())
	}
	return err
}

// SendMessage sends body to the conversation targetID.
func (c *Client) SendMessage(ctx context.Context, targetID, body string) error {
	link := c.authenticatedLink()
	if link == nil {
		return ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if err := link.SendMessage(ctx, targetID, uuid.NewString(), body); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// FetchProfile loads the signed-in account's vCard.
func (c *Client) FetchProfile(ctx context.Context) (*profile.Profile, error) {
	answer, err := c.query(ctx, IQ{Payload: vCardQuery})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return parseVCard(c.AccountID(), answer.Payload)
}

// Ping checks the stream is alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.query(ctx, IQ{Payload: pingQuery})
	return err
}

func (c *Client) authenticatedLink() Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return nil
	}
	return c.link
}

// query sends an IQ and waits for its answer.
func (c *Client) query(ctx context.Context, iq IQ) (Inbound, error) {
	link := c.authenticatedLink()
	if link == nil {
		return Inbound{}, ErrNotConnected
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	iq.ID = uuid.NewString()
	answer := make(chan Inbound, 1)

	c.mu.Lock()
	c.pending[iq.ID] = answer
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, iq.ID)
		c.mu.Unlock()
	}()

	if err := link.SendIQ(ctx, iq); err != nil {
		return Inbound{}, err
	}

	select {
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	case in, ok := <-answer:
		if !ok {
			return Inbound{}, fmt.Errorf("%w: %w", session.ErrTransientConnectionLoss, ErrNotConnected)
		}
		if in.Failed {
			return Inbound{}, ErrQueryFailed
		}
		return in, nil
	}
}

// deliver routes a stanza from the stream. It never blocks.
func (c *Client) deliver(in Inbound) {
	switch in.Kind {
	case InboundMessage:
		if in.Body == "" {
			// Chat states and receipts carry no body
			return
		}
		c.mu.RLock()
		callback := c.onMessage
		c.mu.RUnlock()
		if callback != nil {
			callback(Message{ID: in.ID, From: in.From, Body: in.Body, SentAt: time.Now()})
		}

	case InboundIQ:
		c.mu.Lock()
		answer, ok := c.pending[in.ID]
		delete(c.pending, in.ID)
		c.mu.Unlock()
		if !ok {
			slog.Debug("Ignoring unsolicited IQ", "id", in.ID)
			return
		}
		answer <- in
	}
}

// watch serves the stream until it ends and reports how it ended.
func (c *Client) watch(link Link) {
	serveErr := link.Serve()

	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.authenticated = false
	closing := c.closing
	c.closing = false
	for id, answer := range c.pending {
		close(answer)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	var streamErr *session.StreamError
	switch {
	case closing || serveErr == nil:
		slog.Info("Disconnected from server")
		c.emit(session.Closed())
	case errors.As(serveErr, &streamErr):
		slog.Warn("Stream closed by server", "condition", streamErr.Condition)
		c.emit(session.ClosedOnError(streamErr))
	default:
		slog.Warn("Connection lost", "error", serveErr)
		c.emit(session.ClosedOnError(fmt.Errorf("%w: %w", session.ErrTransientConnectionLoss, serveErr)))
	}
}

func (c *Client) emit(e session.Event) {
	c.mu.RLock()
	callback := c.onLifecycle
	c.mu.RUnlock()

	if callback != nil {
		callback(e)
	}
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
