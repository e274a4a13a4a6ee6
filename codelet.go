// Package codelet defines the message and IPC types shared by the codelet
// engine and its hosts. IPC messages are JSON-encoded and sent over a Unix
// domain socket, one per line.
package codelet

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request types understood by the daemon.
const (
	TypeComplete = "complete"
	TypeExplain  = "explain"
	TypeConsume  = "consume"
	TypeApply    = "apply"
	TypeDismiss  = "dismiss"
	TypeChat     = "chat"
	TypeReset    = "reset"
	TypeEdit     = "edit"
	TypeClose    = "close"
)

// Request is sent from the editor client to the daemon.
type Request struct {
	// Type selects the operation. Empty means TypeComplete.
	Type string `json:"type,omitempty"`
	// RequestID is a per-session incrementing identifier assigned by the editor.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the editor instance. Sessions own their
	// conversation, explanation cache and suggestion surface until a
	// TypeClose request or an idle timeout releases them.
	SessionID string `json:"session_id"`
	// Buffer is the full text of the edited document.
	Buffer string `json:"buffer,omitempty"`
	// CursorOffset is the byte offset of the caret within Buffer. For
	// TypeEdit it is the offset where the edit happened.
	CursorOffset int `json:"cursor_offset"`
	// Language is the editor's language id or file extension ("go", "sh").
	Language string `json:"language,omitempty"`
	// Text is the user's chat input for TypeChat.
	Text string `json:"text,omitempty"`
	// Index selects a presented suggestion for TypeApply.
	Index int `json:"index,omitempty"`
	// Delta is the signed length change of an edit for TypeEdit.
	Delta int `json:"delta,omitempty"`
}

// Insertion describes text the editor should insert.
type Insertion struct {
	// Offset is the byte offset at which Text is inserted.
	Offset int `json:"offset"`
	// Text is the text to insert.
	Text string `json:"text"`
	// CursorOffset is where the caret should land after insertion.
	CursorOffset int `json:"cursor_offset"`
}

// Response is sent from the daemon back to the editor client.
type Response struct {
	// RequestID is echoed from the request for ordering on the client side.
	RequestID int `json:"request_id"`
	// Suggestions holds sanitized suggestion texts in presentation order.
	Suggestions []string `json:"suggestions"`
	// Content is the assistant reply for TypeChat.
	Content string `json:"content,omitempty"`
	// Insertion is set by TypeConsume and TypeApply when there is text to insert.
	Insertion *Insertion `json:"insertion,omitempty"`
	// Archived is the number of messages discarded by TypeReset.
	Archived int `json:"archived,omitempty"`
	// OK reports whether a fire-and-forget request (explain, dismiss, edit)
	// was accepted.
	OK bool `json:"ok,omitempty"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "not_configured", "api_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// ConfigRequest is sent from the editor client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default completion prompt template (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
