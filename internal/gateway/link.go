package gateway

import "context"

// InboundKind distinguishes stanzas delivered by a Link.
type InboundKind int

const (
	// InboundMessage is a chat message.
	InboundMessage InboundKind = iota
	// InboundIQ is the answer to an IQ sent with SendIQ.
	InboundIQ
)

// Inbound is a stanza received on the stream, reduced to what the client uses.
type Inbound struct {
	Kind InboundKind
	ID   string
	From string
	Body string
	// Failed is set on IQ answers of type error.
	Failed bool
	// Payload is the raw child element of an IQ answer.
	Payload []byte
}

// IQ is an outgoing get query. An empty To addresses the account itself.
type IQ struct {
	ID      string
	To      string
	Payload []byte
}

// Link is one open XMPP stream.
//
// Authenticate returns an error wrapping session.ErrAuthenticationRejected
// when the server refuses the credentials. Serve returns nil after Close,
// a *session.StreamError when the server ended the stream with an error
// condition, and the transport error otherwise.
type Link interface {
	// Authenticate negotiates the session. deliver receives inbound
	// stanzas once Serve runs and must not block.
	Authenticate(ctx context.Context, account, token, resource string, deliver func(Inbound)) error
	// Serve reads the stream until it ends.
	Serve() error
	SendMessage(ctx context.Context, to, id, body string) error
	SendIQ(ctx context.Context, iq IQ) error
	Close() error
}

// Dialer opens a Link to the server at addr (host:port).
type Dialer func(ctx context.Context, addr string) (Link, error)
