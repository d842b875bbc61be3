// Package protocol defines the message types exchanged over the local
// control socket between the running client and its helper tools.
//
// The protocol uses newline-delimited JSON (NDJSON) format.
// Each message is a single JSON object terminated by a newline character.
package protocol

import (
	"encoding/json"
)

// MessageType identifies the type of message.
type MessageType string

const (
	// MessageTypeRequest is sent by the side initiating an operation.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse is sent in reply to a request.
	MessageTypeResponse MessageType = "response"
	// MessageTypeEvent is pushed without a preceding request.
	MessageTypeEvent MessageType = "event"
)

// Command identifies the operation to perform.
type Command string

const (
	// CommandReply delivers an inline reply typed into a notification.
	CommandReply Command = "reply"
	// CommandStatus queries the connection status.
	CommandStatus Command = "status"
	// CommandLogin signs the account in with the given credentials.
	CommandLogin Command = "login"
)

// EventName identifies the type of event.
type EventName string

const (
	// EventState is broadcast on the control socket when the connection state changes.
	EventState EventName = "state"
)

// Request represents a command.
type Request struct {
	// ID is a unique identifier for correlating responses.
	ID string `json:"id"`
	// Type is always "request".
	Type MessageType `json:"type"`
	// Command is the operation to perform.
	Command Command `json:"command"`
	// Params contains command-specific parameters.
	Params json.RawMessage `json:"params"`
}

// Response represents a reply to a request.
type Response struct {
	// ID matches the request ID.
	ID string `json:"id"`
	// Type is always "response".
	Type MessageType `json:"type"`
	// Success indicates whether the command succeeded.
	Success bool `json:"success"`
	// Result contains command-specific result data (if Success is true).
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details (if Success is false).
	Error *ErrorInfo `json:"error,omitempty"`
}

// Event represents an asynchronous notification.
type Event struct {
	// Type is always "event".
	Type MessageType `json:"type"`
	// Name identifies the event type.
	Name EventName `json:"name"`
	// Data contains event-specific information.
	Data json.RawMessage `json:"data"`
}

// ErrorInfo contains details about an error.
type ErrorInfo struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// LoginParams contains parameters for the login command.
type LoginParams struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

// LoginResult contains the result of a login.
type LoginResult struct {
	// Info is the message shown to the user after signing in.
	Info string `json:"info,omitempty"`
}

// ReplyParams contains parameters for the reply control command.
type ReplyParams struct {
	TargetID string `json:"target_id"`
	Text     string `json:"text,omitempty"`
}

// StatusResult contains the result of a status query.
type StatusResult struct {
	// State is the current connection state.
	State string `json:"state"`
	// AccountID is the signed-in account (empty if not authenticated).
	AccountID string `json:"account_id,omitempty"`
	// ReceiverLive is true while the background receiver runs.
	ReceiverLive bool `json:"receiver_live"`
	// ReconnectPending is true while a reconnection request is queued or running.
	ReconnectPending bool `json:"reconnect_pending"`
}

// StateData contains data for state events.
type StateData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewRequest creates a new request with the given command and parameters.
func NewRequest(id string, cmd Command, params any) (*Request, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		ID:      id,
		Type:    MessageTypeRequest,
		Command: cmd,
		Params:  paramsJSON,
	}, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) (*Response, error) {
	var resultJSON json.RawMessage
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: true,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code string, message string) *Response {
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewEvent creates a new event with the given name and data.
func NewEvent(name EventName, data any) (*Event, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type: MessageTypeEvent,
		Name: name,
		Data: dataJSON,
	}, nil
}
