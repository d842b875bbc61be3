// Package gatewaytest provides an in-memory XMPP server for tests that
// drive a gateway.Client.
package gatewaytest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/imorning/chat/internal/gateway"
	"github.com/imorning/chat/internal/session"
)

// Sent is a chat message sent by the client.
type Sent struct {
	To   string
	Body string
}

// Server accepts one token for any account and records what clients send.
type Server struct {
	token string

	mu      sync.Mutex
	vcard   []byte
	dialErr error
	dials   int
	logins  int
	pushed  int
	links   []*link
	sent    chan Sent
}

// NewServer creates a server accepting token.
func NewServer(token string) *Server {
	return &Server{token: token, sent: make(chan Sent, 16)}
}

// Dial is a gateway.Dialer.
func (s *Server) Dial(_ context.Context, _ string) (gateway.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	l := &link{srv: s, end: make(chan error, 1)}
	s.links = append(s.links, l)
	return l, nil
}

// FailDial makes every following Dial fail with err. Nil restores dialing.
func (s *Server) FailDial(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// SetVCard sets the vCard returned to profile queries.
func (s *Server) SetVCard(card string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vcard = []byte(card)
}

// Dials returns how many links were opened.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Logins returns how many authentications were attempted.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Sent returns the messages sent by clients.
func (s *Server) Sent() <-chan Sent {
	return s.sent
}

// Push delivers a chat message from the given account to every signed-in client.
func (s *Server) Push(from, body string) {
	s.mu.Lock()
	s.pushed++
	id := fmt.Sprintf("m%d", s.pushed)
	s.mu.Unlock()

	for _, l := range s.authenticated() {
		if deliver := l.deliverFunc(); deliver != nil {
			deliver(gateway.Inbound{Kind: gateway.InboundMessage, ID: id, From: from, Body: body})
		}
	}
}

// Kick ends every signed-in stream with the given stream error condition.
func (s *Server) Kick(condition string) {
	for _, l := range s.authenticated() {
		l.finish(&session.StreamError{Condition: condition})
	}
}

// Drop ends every open stream as if the network failed.
func (s *Server) Drop() {
	s.mu.Lock()
	links := append([]*link(nil), s.links...)
	s.links = nil
	s.mu.Unlock()

	for _, l := range links {
		l.finish(io.ErrUnexpectedEOF)
	}
}

func (s *Server) authenticated() []*link {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*link
	for _, l := range s.links {
		if l.isAuthenticated() {
			out = append(out, l)
		}
	}
	return out
}

type link struct {
	srv *Server
	end chan error

	mu      sync.Mutex
	deliver func(gateway.Inbound)
	authed  bool
	done    bool
}

func (l *link) Authenticate(_ context.Context, account, token, _ string, deliver func(gateway.Inbound)) error {
	l.srv.mu.Lock()
	l.srv.logins++
	accepted := token == l.srv.token
	l.srv.mu.Unlock()

	if !accepted {
		return fmt.Errorf("%w: not-authorized", session.ErrAuthenticationRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return net.ErrClosed
	}
	l.deliver = deliver
	l.authed = true
	return nil
}

func (l *link) Serve() error {
	return <-l.end
}

func (l *link) SendMessage(_ context.Context, to, _, body string) error {
	if l.closed() {
		return net.ErrClosed
	}
	l.srv.sent <- Sent{To: to, Body: body}
	return nil
}

func (l *link) SendIQ(_ context.Context, iq gateway.IQ) error {
	if l.closed() {
		return net.ErrClosed
	}

	answer := gateway.Inbound{Kind: gateway.InboundIQ, ID: iq.ID}
	if bytes.Contains(iq.Payload, []byte("vcard-temp")) {
		l.srv.mu.Lock()
		answer.Payload = l.srv.vcard
		l.srv.mu.Unlock()
	}

	deliver := l.deliverFunc()
	if deliver == nil {
		return net.ErrClosed
	}
	go deliver(answer)
	return nil
}

func (l *link) Close() error {
	l.finish(nil)
	return nil
}

func (l *link) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	l.authed = false
	l.end <- err
}

func (l *link) closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *link) isAuthenticated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.authed
}

func (l *link) deliverFunc() func(gateway.Inbound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deliver
}
