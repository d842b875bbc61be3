package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Peer is the requesting side of an NDJSON connection. It correlates
// responses with requests by ID and hands events to a callback.
type Peer struct {
	conn    net.Conn
	reader  *bufio.Reader
	onEvent func(*Event)

	// writeMu serializes NDJSON writes to prevent interleaved JSON lines
	writeMu sync.Mutex

	// Pending requests waiting for responses
	pendingMu sync.Mutex
	pending   map[string]chan *Response

	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to address and returns a peer reading from it.
func Dial(ctx context.Context, network, address string, onEvent func(*Event)) (*Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewPeer(conn, onEvent), nil
}

// NewPeer wraps conn and starts its reader. onEvent is called from the
// reader goroutine for each event and may be nil.
func NewPeer(conn net.Conn, onEvent func(*Event)) *Peer {
	p := &Peer{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		onEvent:   onEvent,
		pending:   make(map[string]chan *Response),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}

	go p.readLoop()

	return p
}

// Done is closed when the reader has stopped.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the reader once Done is closed.
// It is nil when the peer was closed locally.
func (p *Peer) Err() error {
	<-p.done
	return p.err
}

// Close closes the connection.
func (p *Peer) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		close(p.closeChan)
		closeErr = p.conn.Close()
	})
	return closeErr
}

func (p *Peer) closedLocally() bool {
	select {
	case <-p.closeChan:
		return true
	default:
		return false
	}
}

// Call sends a request and waits for its response. A failed response is
// returned as a *RemoteError.
func (p *Peer) Call(ctx context.Context, cmd Command, params any) (*Response, error) {
	id := uuid.New().String()

	req, err := NewRequest(id, cmd, params)
	if err != nil {
		return nil, err
	}

	respChan := make(chan *Response, 1)
	p.pendingMu.Lock()
	p.pending[id] = respChan
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	p.writeMu.Lock()
	writeErr := WriteMessage(p.conn, req)
	p.writeMu.Unlock()

	if writeErr != nil {
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if err := resp.Err(); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		if p.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPeerClosed, p.err)
		}
		return nil, ErrPeerClosed
	}
}

// CallResult sends a request and decodes the response result into out.
func (p *Peer) CallResult(ctx context.Context, cmd Command, params, out any) error {
	resp, err := p.Call(ctx, cmd, params)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", cmd, err)
	}
	return nil
}

func (p *Peer) readLoop() {
	defer close(p.done)

	for {
		line, err := ReadLine(p.reader, MaxMessageSize)
		if err != nil {
			if p.closedLocally() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				err = io.EOF
			}
			if err != io.EOF {
				slog.Debug("Read error from peer", "error", err)
			}
			p.err = err
			return
		}

		p.handleMessage(line)
	}
}

func (p *Peer) handleMessage(data []byte) {
	msgType, _, err := Kind(data)
	if err != nil {
		slog.Warn("Invalid message from peer", "error", err)
		return
	}

	switch msgType {
	case MessageTypeResponse:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("Invalid response from peer", "error", err)
			return
		}
		p.handleResponse(&resp)

	case MessageTypeEvent:
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("Invalid event from peer", "error", err)
			return
		}
		if p.onEvent != nil {
			p.onEvent(&event)
		}

	default:
		// Log unknown message types for debugging (forward compatibility)
		truncatedData := string(data)
		if len(truncatedData) > 200 {
			truncatedData = truncatedData[:200] + "..."
		}
		slog.Warn("Unknown message type from peer",
			"type", msgType,
			"data", truncatedData)
	}
}

func (p *Peer) handleResponse(resp *Response) {
	p.pendingMu.Lock()
	ch, ok := p.pending[resp.ID]
	p.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}
