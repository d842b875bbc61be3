package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/imorning/chat/internal/protocol"
)

// ErrNotRunning is returned when no client is listening on the control socket.
var ErrNotRunning = errors.New("imorning-chat is not running")

// Remote is a connection to a running client's control socket.
type Remote struct {
	peer *protocol.Peer
}

// DialRemote connects to the control socket at socketPath. onEvent receives
// broadcast events and may be nil.
func DialRemote(ctx context.Context, socketPath string, onEvent func(*protocol.Event)) (*Remote, error) {
	peer, err := protocol.Dial(ctx, "unix", socketPath, onEvent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	return &Remote{peer: peer}, nil
}

// IsRunningAt checks if a client is listening on socketPath.
func IsRunningAt(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	_ = conn.Close() // Only connectivity matters
	return true
}

// Reply delivers an inline reply for the conversation targetID.
func (r *Remote) Reply(ctx context.Context, targetID, text string) error {
	_, err := r.peer.Call(ctx, protocol.CommandReply, protocol.ReplyParams{TargetID: targetID, Text: text})
	return err
}

// Login signs the running client in as accountID. It returns the info
// message reported on success.
func (r *Remote) Login(ctx context.Context, accountID, token string) (string, error) {
	var result protocol.LoginResult
	params := protocol.LoginParams{AccountID: accountID, Token: token}
	if err := r.peer.CallResult(ctx, protocol.CommandLogin, params, &result); err != nil {
		return "", err
	}
	return result.Info, nil
}

// Status queries the connection status.
func (r *Remote) Status(ctx context.Context) (*protocol.StatusResult, error) {
	var result protocol.StatusResult
	if err := r.peer.CallResult(ctx, protocol.CommandStatus, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Done is closed when the connection ends.
func (r *Remote) Done() <-chan struct{} {
	return r.peer.Done()
}

// Close closes the connection.
func (r *Remote) Close() error {
	return r.peer.Close()
}
