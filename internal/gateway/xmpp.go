package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	xmpp "github.com/meszmate/xmpp-go"
	"github.com/meszmate/xmpp-go/dial"
	"github.com/meszmate/xmpp-go/jid"
	"github.com/meszmate/xmpp-go/plugins/ping"
	"github.com/meszmate/xmpp-go/stanza"

	"github.com/imorning/chat/internal/session"
)

// saslConditions are the RFC 6120 SASL failure conditions that mean the
// credentials were refused.
var saslConditions = []string{
	"not-authorized",
	"account-disabled",
	"credentials-expired",
	"invalid-authzid",
	"temporary-auth-failure",
}

// streamConditions are the RFC 6120 stream error conditions.
var streamConditions = []string{
	session.ConditionConflict,
	session.ConditionPolicyViolation,
	session.ConditionNotAuthorized,
	"system-shutdown",
	"see-other-host",
	"host-gone",
	"host-unknown",
	"connection-timeout",
	"internal-server-error",
	"resource-constraint",
	"reset",
	"undefined-condition",
	"unsupported-version",
	"invalid-xml",
	"not-well-formed",
}

// xmppLink is a Link over github.com/meszmate/xmpp-go.
type xmppLink struct {
	host string

	newSession     func(ctx context.Context, local jid.JID) (*xmpp.Session, error)
	closeTransport func()

	mu      sync.Mutex
	client  *xmpp.Client
	session *xmpp.Session
	deliver func(Inbound)
	closed  bool
}

// DialXMPP opens a TLS stream to the XMPP server at addr.
func DialXMPP(ctx context.Context, addr string) (Link, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := dial.NewDialer()
	dialer.TLSConfig = &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	trans, err := dialer.Dial(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("failed to dial server: %w", err)
	}

	return &xmppLink{
		host: host,
		newSession: func(ctx context.Context, local jid.JID) (*xmpp.Session, error) {
			return xmpp.NewSession(ctx, trans, xmpp.WithLocalAddr(local))
		},
		closeTransport: func() { trans.Close() },
	}, nil
}

func (l *xmppLink) Authenticate(ctx context.Context, account, token, resource string, deliver func(Inbound)) error {
	local, err := jid.Parse(account)
	if err != nil {
		return fmt.Errorf("%w: invalid account: %w", session.ErrAuthenticationRejected, err)
	}
	if resource != "" {
		local = local.WithResource(resource)
	}

	client, err := xmpp.NewClient(local, token,
		xmpp.WithPlugins(ping.New()),
		xmpp.WithHandler(xmpp.HandlerFunc(l.handleStanza)),
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()

	sess, err := l.newSession(ctx, local)
	if err != nil {
		return authError(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = sess.Close()
		return net.ErrClosed
	}
	l.client = client
	l.session = sess
	return nil
}

func (l *xmppLink) Serve() error {
	sess := l.current()
	if sess == nil {
		return net.ErrClosed
	}

	err := sess.Serve(nil)

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil
	}
	return serveError(err)
}

func (l *xmppLink) SendMessage(ctx context.Context, to, id, body string) error {
	sess := l.current()
	if sess == nil {
		return net.ErrClosed
	}
	target, err := jid.Parse(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	msg := stanza.NewMessage(stanza.MessageChat)
	msg.To = target
	msg.ID = id
	msg.Body = body
	return sess.Send(ctx, msg)
}

func (l *xmppLink) SendIQ(ctx context.Context, q IQ) error {
	sess := l.current()
	if sess == nil {
		return net.ErrClosed
	}

	iq := stanza.NewIQ(stanza.IQGet)
	iq.ID = q.ID
	if q.To != "" {
		to, err := jid.Parse(q.To)
		if err != nil {
			return fmt.Errorf("invalid IQ recipient %q: %w", q.To, err)
		}
		iq.To = to
	}
	iq.Query = q.Payload
	return sess.SendElement(ctx, iq)
}

func (l *xmppLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	sess := l.session
	l.mu.Unlock()

	if sess != nil {
		return sess.Close()
	}
	l.closeTransport()
	return nil
}

func (l *xmppLink) current() *xmpp.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.session
}

func (l *xmppLink) handleStanza(_ context.Context, _ *xmpp.Session, st stanza.Stanza) error {
	l.mu.Lock()
	deliver := l.deliver
	l.mu.Unlock()
	if deliver == nil {
		return nil
	}

	switch s := st.(type) {
	case *stanza.Message:
		in := Inbound{Kind: InboundMessage, ID: s.ID, Body: s.Body}
		if !s.From.IsZero() {
			in.From = s.From.Bare().String()
		}
		deliver(in)
	case *stanza.IQ:
		deliver(Inbound{
			Kind:    InboundIQ,
			ID:      s.ID,
			Failed:  s.Type == stanza.IQError,
			Payload: s.Query,
		})
	}
	return nil
}

// conditioner is implemented by library errors that carry a defined condition.
type conditioner interface {
	Condition() string
}

// authError marks SASL failures as rejected credentials.
func authError(err error) error {
	if cond, ok := condition(err, saslConditions, "sasl"); ok {
		return fmt.Errorf("%w: %s: %w", session.ErrAuthenticationRejected, cond, err)
	}
	return err
}

// serveError turns a stream error into *session.StreamError. Other errors
// are transport failures and are returned unchanged.
func serveError(err error) error {
	if err == nil {
		return nil
	}
	if cond, ok := condition(err, streamConditions, "stream"); ok {
		return &session.StreamError{Condition: cond, Text: err.Error()}
	}
	return err
}

// condition finds a defined condition in err. Typed errors are checked
// first; otherwise the condition must appear as a whole word in an error
// message that also names the failing layer.
func condition(err error, known []string, layer string) (string, bool) {
	var c conditioner
	if errors.As(err, &c) {
		for _, k := range known {
			if c.Condition() == k {
				return k, true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, layer) {
		return "", false
	}
	words := strings.FieldsFunc(msg, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '-')
	})
	for _, w := range words {
		for _, k := range known {
			if w == k {
				return k, true
			}
		}
	}
	return "", false
}
