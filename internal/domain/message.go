package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType is the closed vocabulary of cross-context requests and
// broadcasts. The coordinator dispatches on it exhaustively; anything
// outside the vocabulary is answered with an unknown-type failure.
type MessageType string

const (
	// Requests (front surface -> coordinator).
	TypeChatRequest       MessageType = "GPT_REQUEST"
	TypeGetAPIKey         MessageType = "GET_API_KEY"
	TypeSetAPIKey         MessageType = "SET_API_KEY"
	TypeGetTabInfo        MessageType = "GET_TAB_INFO"
	TypeRunAudit          MessageType = "RUN_AUDIT"
	TypeDebugSession      MessageType = "DEBUG_SESSION"
	TypeConsoleAppend     MessageType = "CONSOLE_APPEND"
	TypeGetConsoleLogs    MessageType = "GET_CONSOLE_LOGS"
	TypeGetSettings       MessageType = "GET_SETTINGS"
	TypeSetSettings       MessageType = "SET_SETTINGS"
	TypeTabUpdate         MessageType = "TAB_UPDATED"
	TypePing              MessageType = "PING"

	// Broadcasts (coordinator -> any listener).
	TypeChatResponse MessageType = "GPT_RESPONSE"
	TypeAuditResult  MessageType = "AUDIT_RESULT"
)

// Known reports whether t belongs to the request vocabulary.
func (t MessageType) Known() bool {
	switch t {
	case TypeChatRequest, TypeGetAPIKey, TypeSetAPIKey, TypeGetTabInfo,
		TypeRunAudit, TypeDebugSession, TypeConsoleAppend,
		TypeGetConsoleLogs, TypeGetSettings, TypeSetSettings,
		TypeTabUpdate, TypePing:
		return true
	}
	return false
}

// TargetChatWindow is the logical recipient name for chat and audit
// broadcasts. Listeners with a different surface name ignore them.
const TargetChatWindow = "chat_window"

// Message is the unit of communication between contexts. Immutable once
// sent; the payload is tag-dependent and only presence-checked, never
// validated against a schema.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the message payload into v. A missing payload
// is reported as an error so handlers can fail fast on empty requests.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("domain: message %s has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("domain: decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Response is the envelope every handler produces. Callers must branch on
// Success before trusting Data.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a success response carrying v. A marshal failure degrades to
// an error response rather than panicking; the dispatch boundary relies
// on every path producing a well-formed envelope.
func OK(v any) Response {
	if v == nil {
		return Response{Success: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Errorf("domain: encode response data: %w", err))
	}
	return Response{Success: true, Data: data}
}

// Fail builds an error response from err.
func Fail(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "unknown error"}
	}
	return Response{Success: false, Error: err.Error()}
}

// DecodeData unmarshals the response data into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("domain: response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("domain: decode response data: %w", err)
	}
	return nil
}

// ChatRequestPayload asks the coordinator to relay a prompt upstream.
type ChatRequestPayload struct {
	Message        string       `json:"message"`
	ConversationID string       `json:"conversationId,omitempty"`
	Context        *PageContext `json:"context,omitempty"`
}

// ChatResultPayload is the broadcast body for a finished chat request,
// delivered on both the success and error paths.
type ChatResultPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
	Model          string `json:"model,omitempty"`
	Usage          *Usage `json:"usage,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SetAPIKeyPayload carries the credential for SET_API_KEY.
type SetAPIKeyPayload struct {
	APIKey string `json:"apiKey"`
}

// TabInfoPayload selects what GET_TAB_INFO should include beyond the
// basic tab record. Content and logs are independent features that may be
// combined in one request.
type TabInfoPayload struct {
	IncludeContent bool `json:"includeContent,omitempty"`
	IncludeLogs    bool `json:"includeLogs,omitempty"`
}

// TabInfoResult is the GET_TAB_INFO response body.
type TabInfoResult struct {
	Tab      Tab            `json:"tab"`
	Snapshot *TabSnapshot   `json:"snapshot,omitempty"`
	Logs     []ConsoleEntry `json:"logs,omitempty"`
}

// RunAuditPayload requests an audit. An empty URL means "the current web
// page"; Cached asks for the last result instead of a new run.
type RunAuditPayload struct {
	URL    string `json:"url,omitempty"`
	Cached bool   `json:"cached,omitempty"`
}

// DebugSessionPayload toggles console capture for one tab.
type DebugSessionPayload struct {
	TabID  int64 `json:"tabId"`
	Enable bool  `json:"enable"`
}

// ConsoleAppendPayload delivers one console record from a page context.
// Entries for tabs without an enabled debug session are dropped, not
// rejected.
type ConsoleAppendPayload struct {
	TabID int64  `json:"tabId"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ConsoleLogsPayload requests captured console entries for a tab,
// optionally bundled with a detailed page analysis.
type ConsoleLogsPayload struct {
	TabID           int64 `json:"tabId"`
	IncludeAnalysis bool  `json:"includeAnalysis,omitempty"`
}

// ConsoleLogsResult is the GET_CONSOLE_LOGS response body.
type ConsoleLogsResult struct {
	Logs     []ConsoleEntry `json:"logs"`
	Analysis *PageAnalysis  `json:"analysis,omitempty"`
}

// Settings are the durable feature flags, stored next to the credential
// in the same flat key-value namespace.
type Settings struct {
	DebugMode   bool `json:"debugMode"`
	AutoInject  bool `json:"autoInject"`
	ContextMenu bool `json:"contextMenu"`
}

// TabUpdatePayload is how page contexts announce themselves. Removed
// takes precedence; Touched bumps the access time without changing the
// record.
type TabUpdatePayload struct {
	Tab     Tab  `json:"tab"`
	Removed bool `json:"removed,omitempty"`
	Touched bool `json:"touched,omitempty"`
}

// PingResult is the PING response body.
type PingResult struct {
	Version string `json:"version"`
}
