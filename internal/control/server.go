// Package control serves the local control socket used to deliver inline
// replies and query the connection status of the running client.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/imorning/chat/internal/protocol"
)

const (
	// SocketName is the file name of the control socket.
	SocketName = "control.sock"

	// maxConcurrentClients bounds simultaneously connected clients.
	maxConcurrentClients = 10
)

// ErrAlreadyRunning is returned by Start on a listening server.
var ErrAlreadyRunning = errors.New("control server already running")

// RequestHandler answers one request from a control client.
type RequestHandler func(ctx context.Context, req *protocol.Request) *protocol.Response

// DefaultSocketPath returns the socket path under $XDG_RUNTIME_DIR,
// falling back to the temp dir.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "imorning-chat", SocketName)
}

// Server accepts control clients on a UNIX socket owned by the current user.
// Only processes running as the same user may connect.
type Server struct {
	path    string
	handler RequestHandler
	uid     int

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	conns    map[*Conn]struct{}

	wg sync.WaitGroup
}

// NewServer creates a server for the socket at path. It panics on a nil handler.
func NewServer(path string, handler RequestHandler) *Server {
	if handler == nil {
		panic("control: NewServer called with nil handler")
	}
	return &Server{
		path:    path,
		handler: handler,
		uid:     os.Getuid(),
		conns:   make(map[*Conn]struct{}),
	}
}

// SocketPath returns the path of the UNIX socket.
func (s *Server) SocketPath() string {
	return s.path
}

// Start listens on the socket, replacing a stale one left by a previous run.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on control socket: %w", err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to restrict control socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = listener
	s.cancel = cancel

	s.wg.Add(1)
	go s.accept(ctx, listener)

	slog.Info("Control server started", "socket", s.path)
	return nil
}

// Stop closes the listener and every client, then removes the socket.
// It is a no-op on a stopped server.
func (s *Server) Stop() error {
	s.mu.Lock()
	listener := s.listener
	if listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.listener = nil
	s.cancel()
	conns := s.snapshot()
	s.mu.Unlock()

	if err := listener.Close(); err != nil {
		slog.Warn("Failed to close control listener", "error", err)
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove control socket", "path", s.path, "error", err)
	}

	slog.Info("Control server stopped")
	return nil
}

// Broadcast sends event to every connected client.
func (s *Server) Broadcast(event *protocol.Event) {
	s.mu.Lock()
	conns := s.snapshot()
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.SendEvent(event); err != nil {
			slog.Debug("Dropping event for control client", "event", event.Name, "error", err)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// snapshot must be called with s.mu held.
func (s *Server) snapshot() []*Conn {
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *Server) accept(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Control accept failed", "error", err)
			continue
		}

		if err := s.authorize(nc); err != nil {
			slog.Warn("Rejecting control client", "error", err)
			_ = nc.Close()
			continue
		}

		c := &Conn{conn: nc}
		if !s.track(c) {
			slog.Warn("Rejecting control client, too many connections", "max", maxConcurrentClients)
			_ = nc.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(ctx, c)
	}
}

// authorize checks the peer runs as the same user as this process.
func (s *Server) authorize(nc net.Conn) error {
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		return nil
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return err
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return err
	}
	if credErr != nil {
		return fmt.Errorf("reading peer credentials: %w", credErr)
	}
	if int(cred.Uid) != s.uid {
		return fmt.Errorf("peer uid %d does not match %d", cred.Uid, s.uid)
	}
	return nil
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || len(s.conns) >= maxConcurrentClients {
		return false
	}
	s.conns[c] = struct{}{}
	slog.Debug("Control client connected", "clients", len(s.conns))
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	slog.Debug("Control client disconnected", "clients", len(s.conns))
}

// serve answers requests from c until it disconnects or sends an
// oversized line.
func (s *Server) serve(ctx context.Context, c *Conn) {
	defer s.wg.Done()
	defer s.untrack(c)
	defer func() { _ = c.Close() }()

	reader := bufio.NewReader(c.conn)
	for {
		line, err := protocol.ReadLine(reader, protocol.MaxMessageSize)
		switch {
		case errors.Is(err, protocol.ErrMessageTooLarge):
			slog.Warn("Control request too large", "limit", protocol.MaxMessageSize)
			c.fail(protocol.ErrCodeMessageTooLarge, err.Error())
			return
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return
		case err != nil:
			slog.Debug("Control read failed", "error", err)
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Warn("Invalid control request", "error", err)
			c.fail(protocol.ErrCodeInvalidRequest, "invalid JSON")
			continue
		}

		if err := c.SendResponse(s.handler(ctx, &req)); err != nil {
			slog.Debug("Failed to answer control client", "command", req.Command, "error", err)
			return
		}
	}
}

// Conn is one connected control client. Writes are serialized so
// responses and broadcast events never interleave.
type Conn struct {
	conn net.Conn
	mu   sync.Mutex
}

// SendResponse writes a response line.
func (c *Conn) SendResponse(resp *protocol.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMessage(c.conn, resp)
}

// SendEvent writes an event line.
func (c *Conn) SendEvent(event *protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMessage(c.conn, event)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) fail(code, message string) {
	if err := c.SendResponse(protocol.NewErrorResponse("", code, message)); err != nil {
		slog.Debug("Failed to send control error", "code", code, "error", err)
	}
}
