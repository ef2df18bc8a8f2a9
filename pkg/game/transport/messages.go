// Package transport lets a remote agent drive a map construction session
// over a WebSocket. One connection holds at most one session at a time.
package transport

import (
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/verify"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	MessageTypeStart   MessageType = "start"
	MessageTypeStarted MessageType = "started"
	MessageTypeCall    MessageType = "call"
	MessageTypeResult  MessageType = "result"
	MessageTypeStatus  MessageType = "status"
	MessageTypeError   MessageType = "error"
)

// ClientMessage is anything a client sends
type ClientMessage struct {
	Type   MessageType    `json:"type"`
	Prompt string         `json:"prompt,omitempty"`
	Call   *protocol.Call `json:"call,omitempty"`
}

// StartedMessage answers a start with the session id and the tool specs
type StartedMessage struct {
	Type      MessageType         `json:"type"`
	SessionID string              `json:"session_id"`
	Tools     []protocol.ToolSpec `json:"tools"`
}

// ResultMessage answers a call. A successful finalize also carries the
// stored artifact and, when a verifier is configured, its verification.
type ResultMessage struct {
	Type         MessageType       `json:"type"`
	Result       protocol.Result   `json:"result"`
	OpsUsed      int               `json:"ops_used"`
	Artifact     *builder.Artifact `json:"artifact,omitempty"`
	Verification *verify.Result    `json:"verification,omitempty"`
}

// StatusMessage answers a status request
type StatusMessage struct {
	Type   MessageType    `json:"type"`
	Status builder.Status `json:"status"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Error codes
const (
	CodeBadMessage  = "bad_message"
	CodeNoSession   = "no_session"
	CodeBudget      = "budget_exhausted"
	CodeStoreFailed = "store_failed"
)
