// Package web serves the browser interface: a chat pane talking to the
// agent and an inspector panel showing the session's events with their
// traces and graphs.
//
// # WebSocket Protocol Overview
//
// The /api/ws endpoint carries the chat. All messages are JSON-encoded with
// the following structure:
//
//	{
//	    "type": "message_type",
//	    "data": { ... }  // Optional, type-specific payload
//	}
//
// A prompt from the browser is answered by user_message, agent_messages,
// then two inspector messages: the event list first and the list enriched
// with traces and graphs second.
package web

import (
	"encoding/json"

	"github.com/inercia/adkinspect/internal/inspector"
)

// WSMessage represents a WebSocket message between frontend and backend.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage parses raw message bytes into a WSMessage.
func ParseMessage(data []byte) (WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// Frontend → Backend message types.
const (
	// WSMsgTypePrompt sends a user message to the agent.
	// Data: { "message": string }
	WSMsgTypePrompt = "prompt"

	// WSMsgTypeRefresh asks for the full inspector snapshot.
	// Data: none
	WSMsgTypeRefresh = "refresh"
)

// Backend → Frontend message types.
const (
	// WSMsgTypeUserMessage echoes the accepted user message.
	// Data: ChatMessage
	WSMsgTypeUserMessage = "user_message"

	// WSMsgTypeAgentMessages carries the assistant messages of one turn.
	// Data: { "messages": []ChatMessage }
	WSMsgTypeAgentMessages = "agent_messages"

	// WSMsgTypeInspector carries a session snapshot.
	// Data: { "full": bool, "session": object }
	WSMsgTypeInspector = "inspector"

	// WSMsgTypeError reports a failure.
	// Data: { "code": string, "message": string }
	WSMsgTypeError = "error"
)

// PromptData is the payload of a prompt message.
type PromptData struct {
	Message string `json:"message"`
}

// AgentMessagesData is the payload of an agent_messages message.
type AgentMessagesData struct {
	Messages []inspector.ChatMessage `json:"messages"`
}

// InspectorData is the payload of an inspector message.
type InspectorData struct {
	Full    bool               `json:"full"`
	Session inspector.Snapshot `json:"session"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
