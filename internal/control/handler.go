package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/imorning/chat/internal/protocol"
	"github.com/imorning/chat/internal/session"
)

// Replier delivers an inline reply to a conversation.
type Replier interface {
	OnInlineReply(ctx context.Context, targetID, text string)
}

// SessionStatus exposes the connection lifecycle state.
type SessionStatus interface {
	State() session.State
	ReceiverLive() bool
}

// ReconnectStatus reports whether a reconnection is queued or running.
type ReconnectStatus interface {
	Pending() bool
}

// AccountSource reports the signed-in account.
type AccountSource interface {
	AccountID() string
}

// Authenticator signs the account in with user-supplied credentials.
type Authenticator interface {
	SignIn(ctx context.Context, accountID, token string) (string, error)
}

// Handler translates control requests into calls on the running client.
// Nil collaborators are reported as zero values.
type Handler struct {
	Replies   Replier
	Session   SessionStatus
	Reconnect ReconnectStatus
	Account   AccountSource
	Login     Authenticator
}

// HandleRequest processes a request and returns a response.
func (h *Handler) HandleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Command {
	case protocol.CommandReply:
		return h.handleReply(ctx, req)
	case protocol.CommandStatus:
		return h.handleStatus(req)
	case protocol.CommandLogin:
		return h.handleLogin(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (h *Handler) handleReply(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.ReplyParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams,
			"invalid reply params")
	}

	// A blank target still reaches the dispatcher, which withdraws the
	// notification without sending.
	target := strings.TrimSpace(params.TargetID)
	if h.Replies == nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidState,
			"inline replies are not available")
	}

	slog.Debug("Inline reply received", "target", target)
	h.Replies.OnInlineReply(ctx, target, params.Text)

	return success(req.ID, nil)
}

func (h *Handler) handleLogin(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.LoginParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams,
			"invalid login params")
	}
	if h.Login == nil {
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidState,
			"sign-in is not available")
	}

	slog.Debug("Sign-in requested over control socket", "account", params.AccountID)
	info, err := h.Login.SignIn(ctx, params.AccountID, params.Token)
	switch {
	case err == nil:
		return success(req.ID, protocol.LoginResult{Info: info})
	case errors.Is(err, session.ErrValidation):
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams, err.Error())
	case errors.Is(err, session.ErrAuthenticationRejected):
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeNotAuthorized, err.Error())
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeLoginFailed, err.Error())
	}
}

func (h *Handler) handleStatus(req *protocol.Request) *protocol.Response {
	result := protocol.StatusResult{State: string(session.StateDisconnected)}
	if h.Session != nil {
		result.State = string(h.Session.State())
		result.ReceiverLive = h.Session.ReceiverLive()
	}
	if h.Reconnect != nil {
		result.ReconnectPending = h.Reconnect.Pending()
	}
	if h.Account != nil {
		result.AccountID = h.Account.AccountID()
	}
	return success(req.ID, result)
}

func success(id string, result any) *protocol.Response {
	resp, err := protocol.NewSuccessResponse(id, result)
	if err != nil {
		return protocol.NewErrorResponse(id, protocol.ErrCodeInternalError, err.Error())
	}
	return resp
}

// StateEvent builds the event broadcast when the connection state changes.
func StateEvent(from, to session.State) (*protocol.Event, error) {
	return protocol.NewEvent(protocol.EventState, protocol.StateData{From: string(from), To: string(to)})
}
